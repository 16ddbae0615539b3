package xerrors

var (
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400004, "invalid option type", "supported types: call, put", nil)
	// ErrDimMismatch 维度不匹配.
	ErrDimMismatch = New(ErrInvalidArg, 400007, "dimension mismatch", "matrix or vector dimensions do not match", nil)
	// ErrInvalidStepCount 网格步数必须为正。
	ErrInvalidStepCount = New(ErrInvalidArg, 400019, "invalid step count", "stock and time steps must be positive", nil)
	// ErrGridTooLarge 网格超过配置上限。
	ErrGridTooLarge = New(ErrLimitExceeded, 429001, "grid too large", "requested grid exceeds the configured limit", nil)
	// ErrBatchTooLarge 批量请求条数超过配置上限。
	ErrBatchTooLarge = New(ErrLimitExceeded, 429002, "batch too large", "too many items in one batch request", nil)
	// ErrZeroPivot 三对角消元遇到零主元。
	ErrZeroPivot = New(ErrInternal, 500003, "zero pivot in tridiagonal solve", "degenerate grid or parameters", nil)
	// ErrPenaltyNotConverged 罚函数不动点迭代未在上限内收敛。
	ErrPenaltyNotConverged = New(ErrInternal, 500004, "penalty iteration did not converge", "iteration cap reached", nil)
	// ErrNonFinitePrice 求解结果出现 NaN 或 Inf。
	ErrNonFinitePrice = New(ErrInternal, 500005, "non-finite price", "surface produced NaN or Inf at the requested node", nil)
	// ErrCacheMiss 缓存未命中。
	ErrCacheMiss = New(ErrNotFound, 404001, "cache miss", "entry not found", nil)
)
