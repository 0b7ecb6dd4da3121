package availability

import "errors"

// Domain errors. Callers match them with errors.Is; context is attached with %w.
var (
	ErrInvalidDate           = errors.New("invalid date")
	ErrNoServiceSelected     = errors.New("no service selected")
	ErrInvalidService        = errors.New("invalid service")
	ErrServiceHasSubservices = errors.New("service has subservices")
	ErrInvalidOption         = errors.New("invalid option")
	ErrNoBookableDuration    = errors.New("no bookable duration")
	ErrSlotUnavailable       = errors.New("slot unavailable")
	ErrWorkerIneligible      = errors.New("worker ineligible")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidDate, "invalid_date"},
	{ErrNoServiceSelected, "no_service_selected"},
	{ErrInvalidService, "invalid_service"},
	{ErrServiceHasSubservices, "service_has_subservices"},
	{ErrInvalidOption, "invalid_option"},
	{ErrNoBookableDuration, "no_bookable_duration"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrWorkerIneligible, "worker_ineligible"},
}

// ErrorCode returns the stable code of a domain error, or "" for anything else.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// IsConflict reports whether err is a scheduling conflict rather than bad input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrWorkerIneligible)
}
