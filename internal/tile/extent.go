package tile

// Extent：索引播种使用的行列范围，[Min, Max) 半开区间，按 Step 间隔取格
// 背景：每个主格覆盖 2x2 瓦片，Step=2 时相邻四格互不重叠
type Extent struct {
	MinCol int
	MaxCol int
	MinRow int
	MaxRow int
	Step   int
}

// UtahExtent：犹他州 WMTS 影像在 20 级下的覆盖范围
var UtahExtent = Extent{MinCol: 192093, MaxCol: 206656, MinRow: 389243, MaxRow: 408141, Step: 2}

func (e Extent) step() int {
	if e.Step <= 0 {
		return 1
	}
	return e.Step
}

func span(min, max, step int) int {
	if max <= min {
		return 0
	}
	return (max - min + step - 1) / step
}

// Count：范围内主格数量
func (e Extent) Count() int64 {
	s := e.step()
	return int64(span(e.MinCol, e.MaxCol, s)) * int64(span(e.MinRow, e.MaxRow, s))
}

// Each：按列优先遍历范围内的主格；fn 返回 false 时提前结束
func (e Extent) Each(fn func(GridCell) bool) {
	s := e.step()
	for col := e.MinCol; col < e.MaxCol; col += s {
		for row := e.MinRow; row < e.MaxRow; row += s {
			if !fn(GridCell{Col: col, Row: row}) {
				return
			}
		}
	}
}
