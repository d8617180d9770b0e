package xerrors

var (
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = New(ErrInvalidArg, 400001, "empty data", "input data must not be empty", nil)
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrDimMismatch 维度不匹配.
	ErrDimMismatch = New(ErrInvalidArg, 400007, "dimension mismatch", "matrix or vector dimensions do not match", nil)
	// ErrNotSquare 不是方阵.
	ErrNotSquare = New(ErrInvalidArg, 400008, "matrix must be square", "input matrix is not square", nil)
	// ErrNotPositiveDefinite 不是正定矩阵.
	ErrNotPositiveDefinite = New(ErrNumerical, 400009, "matrix is not positive definite", "input matrix must be positive definite", nil)
	// ErrDataLength 数据长度与形状不符.
	ErrDataLength = New(ErrInvalidArg, 400019, "data length mismatch", "len(data) must equal dates*scenarios*series", nil)
	// ErrUnknownType 未注册的类型标签.
	ErrUnknownType = New(ErrInvalidArg, 400020, "unknown type tag", "no implementation registered for the type tag", nil)

	// ErrIndexOutOfRange 坐标越界.
	ErrIndexOutOfRange = New(ErrOutOfRange, 416001, "index out of range", "coordinate outside cube bounds", nil)
	// ErrDateBeforeStart 日期早于网格起点.
	ErrDateBeforeStart = New(ErrOutOfRange, 416002, "date before first grid date", "extrapolation is not allowed", nil)
	// ErrDateAfterEnd 日期晚于网格终点.
	ErrDateAfterEnd = New(ErrOutOfRange, 416003, "date after last grid date", "extrapolation is not allowed", nil)

	// ErrUnresolvedModel 引用的模型不存在.
	ErrUnresolvedModel = New(ErrNotFound, 404001, "unresolved model reference", "model name not present in live model set", nil)
	// ErrDuplicateModel 模型名称重复.
	ErrDuplicateModel = New(ErrAlreadyExists, 409001, "duplicate model name", "model names must be unique within a run", nil)

	// ErrSingularMatrix 矩阵奇异，某列不存在非零主元.
	ErrSingularMatrix = New(ErrNumerical, 500003, "singular matrix", "no non-zero pivot found for a column", nil)
	// ErrDegenerateRegression 回归无样本或法方程奇异.
	ErrDegenerateRegression = New(ErrNumerical, 500004, "degenerate regression", "no data cases or singular normal matrix", nil)
)
