package model

// 卡池类型（卡池信息中的 type 字段）
const (
	PoolTypeLimited       = "LIMITED"
	PoolTypeLinkage       = "LINKAGE"
	PoolTypeAttain        = "ATTAIN"
	PoolTypeClassicAttain = "CLASSIC_ATTAIN"
	PoolTypeSingle        = "SINGLE"
	PoolTypeNormal        = "NORMAL"
	PoolTypeSpecial       = "SPECIAL"
	PoolTypeClassic       = "CLASSIC"
	PoolTypeFesClassic    = "FESCLASSIC"
	PoolTypeUnknown       = "UNKNOWN"
)

// UnknownPoolID 未知卡池的占位ID
const UnknownPoolID = "UNKNOWN_0_1_1"

// Pool 卡池信息，Start/End 为闭区间（秒）
type Pool struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	RealName            string         `json:"real_name"`
	Type                string         `json:"type"`
	Start               int64          `json:"start"`
	End                 int64          `json:"end"`
	UpOperators         []string       `json:"up_char_info,omitempty"`
	LimitedOperators    []string       `json:"limited_char_info,omitempty"`
	WeightedUpOperators map[string]int `json:"weight_up_char_info,omitempty"`
}

// UnknownPool 未知卡池占位
func UnknownPool() Pool {
	return Pool{
		ID:       UnknownPoolID,
		Name:     "未知寻访",
		RealName: "未知寻访",
		Type:     PoolTypeUnknown,
	}
}

// IsUnknown 是否为未知卡池
func (p Pool) IsUnknown() bool { return p.Type == PoolTypeUnknown }

// IsUpPool 卡池是否带有UP干员
func (p Pool) IsUpPool() bool { return p.UpOperators != nil }

// IsUp 干员是否为本池UP；非UP池返回 UpUnknown
func (p Pool) IsUp(name string) UpState {
	if !p.IsUpPool() {
		return UpUnknown
	}
	for _, op := range p.UpOperators {
		if op == name {
			return UpYes
		}
	}
	return UpNo
}
