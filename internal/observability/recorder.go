package observability

// Label values shared by every Recorder implementation.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	AuthMethodLogin = "login"
	AuthMethodToken = "token"

	OpCreate     = "create"
	OpApprove    = "approve"
	OpReject     = "reject"
	OpTransition = "transition"
	OpEdit       = "edit"
	OpDelete     = "delete"
)

// Recorder receives discrete outcome events. Callers fire and forget; the
// implementation decides what to count.
type Recorder interface {
	AuthAttempt(method, result string)
	SignalOperation(op, result string)
}

type NopRecorder struct{}

func (NopRecorder) AuthAttempt(string, string)     {}
func (NopRecorder) SignalOperation(string, string) {}

func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
