package models

// VerifyRequest 徽章验证请求（Discord 机器人调用）
type VerifyRequest struct {
	Authentication string `json:"authentication" binding:"required"`
	Address        string `json:"address" binding:"required"`
	DiscordID      string `json:"discordId"`
}

// Quest 单个徽章的验证结果
type Quest struct {
	Badge   string `json:"badge"`  // "CODE:ISSUER"
	TxHash  string `json:"txhash"` // 证明交易哈希（可能为空）
	QuestID uint   `json:"questid"`
}

// VerifyResponse 验证响应（字段形状与 Pathfinder 机器人约定一致）
type VerifyResponse struct {
	Quests          []Quest `json:"quests"`
	TotalReputation string  `json:"totalReputation"`
	ScfRole         string  `json:"scfRole"`
	RoleAssigned    bool    `json:"roleAssigned"`
}

// BadgeRequest 管理后台创建/更新徽章请求
type BadgeRequest struct {
	Code             string   `json:"code" binding:"required"`
	Issuer           string   `json:"issuer" binding:"required"`
	Difficulty       string   `json:"difficulty"`
	SubDifficulty    string   `json:"subDifficulty"`
	CategoryBroad    string   `json:"category_broad"`
	CategoryNarrow   string   `json:"category_narrow"`
	DescriptionShort string   `json:"description_short"`
	DescriptionLong  string   `json:"description_long"`
	Current          bool     `json:"current"`
	Instructions     string   `json:"instructions"`
	IssueDate        string   `json:"issue_date"`
	Image            string   `json:"image"`
	Type             string   `json:"type"`
	Aliases          []string `json:"aliases"`
}
