package task

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAccount    = errors.New("task: unknown account")
	ErrAccountExists     = errors.New("task: account already registered")
	ErrNotAccountOwner   = errors.New("task: caller does not own account")
	ErrEmptyTask         = errors.New("task: task has no actions")
	ErrUnknownCondition  = errors.New("task: unknown condition handle")
	ErrUnknownModule     = errors.New("task: unknown provider module")
	ErrUnknownCustom     = errors.New("task: unknown custom action")
	ErrDuplicateCustom   = errors.New("task: custom action already registered")
	ErrInvalidCeil       = errors.New("task: cost price ceiling must be positive")
	ErrInvalidProvider   = errors.New("task: invalid provider")
	ErrInvalidExecutor   = errors.New("task: invalid executor")
	ErrReceiptNotFound   = errors.New("task: receipt not found")
	ErrSlotUnset         = errors.New("task: slot read before write")
	ErrInvalidOperand    = errors.New("task: operand has neither value nor slot")
	ErrUnknownActionKind = errors.New("task: unknown action kind")

	ErrTaskSpecNotProvided       = errors.New("task: task spec not provided")
	ErrProviderModuleNotProvided = errors.New("task: provider module not enabled")
	ErrInvalidUserProxy          = errors.New("task: account does not fit provider module")
	ErrEngineNotAuth             = errors.New("task: engine not authorised on account")
	ErrExecutorNotMinStaked      = errors.New("task: executor below minimum stake")
)

// Reasons reported by CanExec and Exec. Condition and module reasons are
// passed through as-is.
const (
	OK                              = "OK"
	ReasonInvalidReceipt            = "InvalidReceipt"
	ReasonExpired                   = "Expired"
	ReasonExecutorNotAssigned       = "ExecutorNotAssigned"
	ReasonExecutorNotMinStaked      = "ExecutorNotMinStaked"
	ReasonTaskSpecNotProvided       = "TaskSpecNotProvided"
	ReasonProviderModuleNotProvided = "ProviderModuleNotProvided"
	ReasonCostPriceAboveCeil        = "CostPriceAboveCeil"
	ReasonInsufficientProviderFunds = "InsufficientProviderFunds"
	ReasonConditionNotOk            = "ConditionNotOk"
	ReasonOutOfCostBudget           = "OutOfCostBudget"
	ReasonFlashLoanNotRepaid        = "FlashLoanNotRepaid"
	ReasonActionFailed              = "ActionFailed"
	ReasonInvalidUserProxy          = "InvalidUserProxy"
	ReasonEngineNotAuth             = "EngineNotAuth"
)

// ErrorCode groups execution failures.
type ErrorCode string

const (
	// CodeCannotExec means a pre-execution check failed.
	CodeCannotExec ErrorCode = "CANNOT_EXEC"

	// CodeActionFailed means an action in the program returned an error.
	CodeActionFailed ErrorCode = "ACTION_FAILED"

	// CodeOutOfBudget means metering exceeded the executor's budget.
	CodeOutOfBudget ErrorCode = "OUT_OF_COST_BUDGET"

	// CodeFlashLoan means flash liquidity was still outstanding at the end.
	CodeFlashLoan ErrorCode = "FLASH_LOAN_NOT_REPAID"

	// CodeSettlement means the provider could not pay the executor.
	CodeSettlement ErrorCode = "SETTLEMENT_FAILED"
)

// ExecError is returned by Exec. Reason is the first failing reason,
// verbatim; Err is the underlying cause when there is one.
type ExecError struct {
	Code    ErrorCode
	Receipt uint64
	Reason  string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: receipt %d: %s: %v", e.Code, e.Receipt, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: receipt %d: %s", e.Code, e.Receipt, e.Reason)
}

func (e *ExecError) Unwrap() error { return e.Err }

// AsExecError extracts an ExecError from err.
func AsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsExecError reports whether err is an ExecError with the given code.
func IsExecError(err error, code ErrorCode) bool {
	ee, ok := AsExecError(err)
	return ok && ee.Code == code
}

// actionFailed formats the reason for a failed action.
func actionFailed(index int, kind Kind, cause error) string {
	return fmt.Sprintf("%s:%d:%s:%v", ReasonActionFailed, index, kind, cause)
}

func conditionNotOk(reason string) string {
	return ReasonConditionNotOk + ":" + reason
}

// moduleError maps a module's IsProvided reason to an error.
func moduleError(reason string) error {
	switch reason {
	case OK:
		return nil
	case ReasonInvalidUserProxy:
		return ErrInvalidUserProxy
	case ReasonEngineNotAuth:
		return ErrEngineNotAuth
	}
	return fmt.Errorf("%w: %s", ErrProviderModuleNotProvided, reason)
}
