package goodwe

// Test doubles usable from other packages' tests.

func CreateTestLimitWriter() (*TestLimitWriter, error) {
	return &TestLimitWriter{
		Limit: PowerLimit{Enabled: true, Percent: 100},
	}, nil
}

// TestLimitWriter records every write and can fail on demand.
type TestLimitWriter struct {
	Limit     PowerLimit
	Writes    []PowerLimit
	OpenErr   error
	WriteErr  error
	OpenCalls int
}

func (w *TestLimitWriter) Open() error {
	w.OpenCalls++
	return w.OpenErr
}

func (w *TestLimitWriter) Close() error {
	return nil
}

func (w *TestLimitWriter) ReadLimit() (*PowerLimit, error) {
	limit := w.Limit
	return &limit, nil
}

func (w *TestLimitWriter) WriteLimit(limit PowerLimit) error {
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.Limit = limit
	w.Writes = append(w.Writes, limit)
	return nil
}

// ensure interface compliance
var _ LimitWriter = (*TestLimitWriter)(nil)
