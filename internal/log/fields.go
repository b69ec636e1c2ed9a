package log

// Common field names for structured logging
const (
	FieldComponent            = "component"
	FieldError                = "error"
	FieldOperation            = "operation"
	FieldDuration             = "duration_ms"
	FieldSuccess              = "success"
	FieldHouseholdID          = "household_id"
	FieldMemberID             = "member_id"
	FieldBillID               = "bill_id"
	FieldContributionID       = "contribution_id"
	FieldMemberContributionID = "member_contribution_id"
	FieldStrategy             = "strategy"
	FieldAmountCents          = "amount_cents"
	FieldCount                = "count"
	FieldResource             = "resource"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentAllocation = "allocation"
	ComponentPayment    = "payment"
	ComponentOverlay    = "overlay"
	ComponentView       = "view"
	ComponentStorage    = "storage"
	ComponentStore      = "store"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentBackend    = "backend"
	ComponentMetrics    = "metrics"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpList      = "list"
	OpPay       = "pay"
	OpAllocate  = "allocate"
	OpReconcile = "reconcile"
	OpExport    = "export"
	OpSync      = "sync"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithShare adds the identity and amount of a member contribution.
func (f LogFields) WithShare(id, contributionID, memberID string, amountCents int64) LogFields {
	f[FieldMemberContributionID] = id
	f[FieldContributionID] = contributionID
	f[FieldMemberID] = memberID
	f[FieldAmountCents] = amountCents
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
