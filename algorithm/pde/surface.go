package pde

import (
	"encoding/json"
	"slices"

	"github.com/wyfcoding/fdpricer/xerrors"
)

// Surface 价格曲面 V[i, n], i 为空间下标, n 为时间下标。
// 按列连续存储, 第 n 列即第 n 个时间层上的整条价格曲线。
type Surface struct {
	data []float64
	rows int
	cols int
}

func newSurface(rows, cols int) *Surface {
	return &Surface{
		data: make([]float64, rows*cols),
		rows: rows,
		cols: cols,
	}
}

// Rows 空间节点数。
func (s *Surface) Rows() int { return s.rows }

// Cols 保留的时间层数。
func (s *Surface) Cols() int { return s.cols }

// At 返回 V[i, n]。
func (s *Surface) At(i, n int) float64 { return s.data[n*s.rows+i] }

// Column 返回第 n 个时间层的副本。
func (s *Surface) Column(n int) []float64 {
	return slices.Clone(s.data[n*s.rows : (n+1)*s.rows])
}

func (s *Surface) setColumn(n int, v []float64) {
	copy(s.data[n*s.rows:(n+1)*s.rows], v)
}

type surfaceJSON struct {
	Data []float64 `json:"data"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
}

// MarshalJSON 实现 json.Marshaler。
func (s *Surface) MarshalJSON() ([]byte, error) {
	return json.Marshal(surfaceJSON{Data: s.data, Rows: s.rows, Cols: s.cols})
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (s *Surface) UnmarshalJSON(b []byte) error {
	var raw surfaceJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Rows < 0 || raw.Cols < 0 || len(raw.Data) != raw.Rows*raw.Cols {
		return xerrors.ErrDimMismatch
	}
	s.data, s.rows, s.cols = raw.Data, raw.Rows, raw.Cols
	return nil
}
