package order

// ErrorCode identifies why an order mutation failed. The dialogue policy maps
// codes to user-facing replies and the error classifier maps them to its own
// taxonomy.
type ErrorCode string

const (
	CodeEmptyOrder      ErrorCode = "EMPTY_ORDER"
	CodeNoActiveOrder   ErrorCode = "NO_ACTIVE_ORDER"
	CodeItemNotInOrder  ErrorCode = "ITEM_NOT_IN_ORDER"
	CodeInvalidQuantity ErrorCode = "INVALID_QUANTITY"
	CodeOrderClosed     ErrorCode = "ORDER_CLOSED"
)

// Result is the outcome of an aggregate operation. OK distinguishes the two
// arms: success carries the mutated order, a user-facing message and, for
// Add, the line that was created or merged into; failure carries a code and
// message.
type Result struct {
	OK        bool
	Order     *Order
	Message   string
	AddedLine *Line
	Code      ErrorCode
}

func success(o *Order, message string, added *Line) Result {
	return Result{OK: true, Order: o, Message: message, AddedLine: added}
}

func failure(code ErrorCode, message string) Result {
	return Result{Code: code, Message: message}
}
