package domain

// UnmatchedCountry 描述一个在地图数据中找不到对应国家的国籍。
// 这些球员不会出现在地图上，但仍计入国籍频数表。
type UnmatchedCountry struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Suggestion string `json:"suggestion,omitempty"` // 最相近的地图国家名（仅供人工修正参考）
}

// UnmappedPosition 描述一个不在位置映射表中的原始位置值（原样保留）。
type UnmappedPosition struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
