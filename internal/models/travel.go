package models

// Travel 旅行：移动的集合
type Travel struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// Move 移动：一次连续的记录会话
// 起止时间不单独存储，由所属的位置记录推导
type Move struct {
	ID       string `json:"id" db:"id"`
	TravelID string `json:"travel_id" db:"travel_id"`
}
