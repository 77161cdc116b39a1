package httperror

const (
	Code400_0 = "400_0" // Invalid request body.
	Code400_1 = "400_1" // Validation failed on one or more fields.
	Code400_2 = "400_2" // The pain.001 document could not be parsed.
	Code401_0 = "401_0" // Not authorized.
	Code404_0 = "404_0" // Resource not found.
	Code409_0 = "409_0" // Idempotency key already used with a different payload.
	Code422_0 = "422_0" // Tenant policy rejected the payment.
	Code500_0 = "500_0" // An internal error occurred while processing this request.
	Code500_1 = "500_1" // Cannot retrieve the tenant from the context.
	Code500_2 = "500_2" // Cannot load the tenant configuration.
)
