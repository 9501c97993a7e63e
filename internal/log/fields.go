package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorClass    = "error_class"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldAccountID     = "account_id"
	FieldCategoryID    = "category_id"
	FieldAmount        = "amount"
	FieldDelta         = "delta"
	FieldBalance       = "balance"
	FieldState         = "state"
	FieldPeriodFrom    = "period_from"
	FieldPeriodTo      = "period_to"
	FieldCount         = "count"
	FieldOnline        = "online"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentSync         = "sync"
	ComponentStorage      = "storage"
	ComponentLedger       = "ledger"
	ComponentRemote       = "remote"
	ComponentConnectivity = "connectivity"
	ComponentWorker       = "worker"
	ComponentAMQP         = "amqp"
	ComponentCategories   = "categories"
	ComponentNotify       = "notify"
	ComponentBackend      = "backend"
	ComponentEmulator     = "emulator"
	ComponentHTTP         = "http"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpEdit      = "edit"
	OpDelete    = "delete"
	OpFetch     = "fetch"
	OpDrain     = "drain"
	OpRefresh   = "refresh"
	OpReconcile = "reconcile"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error message; nil errors are ignored
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithTransaction(id, categoryID int64, amount string) LogFields {
	f[FieldTransactionID] = id
	f[FieldCategoryID] = categoryID
	f[FieldAmount] = amount
	return f
}

func (f LogFields) WithHTTPResponse(method, path string, statusCode int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
