package models

import (
	"fmt"
	"time"
)

// DailyTaskConfig describes one recurring action a partner project accepts.
// When GroupKey is set, the daily ceiling is shared across every task type in
// the project carrying the same group key (e.g. Inarfi pools deposit, borrow
// and repay under one limit). Grouped tasks must declare the same ceiling.
type DailyTaskConfig struct {
	Type          string `json:"type"` // e.g. "dex_swap", "deploy"
	DisplayName   string `json:"display_name"`
	DailyCeiling  int    `json:"daily_ceiling"`
	GroupKey      string `json:"group_key,omitempty"`
	Link          string `json:"link,omitempty"`
	Reward        string `json:"reward,omitempty"`
	VerifyDelayMs int    `json:"verify_delay_ms,omitempty"` // simulated verification duration
}

// Project: partner project configuration (loaded from DB, seeded from the
// built-in catalog, optionally overridden by a JSON file at boot).
type Project struct {
	ID               string            `gorm:"primaryKey" json:"id"` // slug, e.g. "nitrodex"
	Name             string            `gorm:"not null" json:"name"`
	Description      string            `gorm:"type:text" json:"description"`
	Website          string            `json:"website"`
	LogoURL          string            `gorm:"type:text" json:"logo_url"`
	BadgeImageURL    string            `gorm:"type:text" json:"badge_image_url"`
	BadgeRequirement int               `gorm:"not null" json:"badge_requirement"` // total completions needed to claim the badge
	TaskTypes        []DailyTaskConfig `gorm:"serializer:json;type:jsonb" json:"task_types"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// TaskConfig returns the config for one task type.
func (p *Project) TaskConfig(taskType string) (DailyTaskConfig, bool) {
	for _, tc := range p.TaskTypes {
		if tc.Type == taskType {
			return tc, true
		}
	}
	return DailyTaskConfig{}, false
}

// GroupMembers returns every task type that shares taskType's daily ceiling.
// For ungrouped tasks that is just the task type itself.
func (p *Project) GroupMembers(taskType string) []string {
	tc, ok := p.TaskConfig(taskType)
	if !ok {
		return nil
	}
	if tc.GroupKey == "" {
		return []string{tc.Type}
	}
	var members []string
	for _, other := range p.TaskTypes {
		if other.GroupKey == tc.GroupKey {
			members = append(members, other.Type)
		}
	}
	return members
}

// Validate rejects configs the tracker cannot enforce.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if p.BadgeRequirement < 1 {
		return fmt.Errorf("project %s: badge_requirement must be >= 1", p.ID)
	}
	if len(p.TaskTypes) == 0 {
		return fmt.Errorf("project %s: at least one task type is required", p.ID)
	}
	groupCeilings := map[string]int{}
	for _, tc := range p.TaskTypes {
		if tc.Type == "" {
			return fmt.Errorf("project %s: task type name is required", p.ID)
		}
		if tc.DailyCeiling < 1 {
			return fmt.Errorf("project %s: task %s: daily_ceiling must be >= 1", p.ID, tc.Type)
		}
		if tc.GroupKey != "" {
			if prev, seen := groupCeilings[tc.GroupKey]; seen && prev != tc.DailyCeiling {
				return fmt.Errorf("project %s: group %s: members declare different ceilings", p.ID, tc.GroupKey)
			}
			groupCeilings[tc.GroupKey] = tc.DailyCeiling
		}
	}
	return nil
}

// DefaultProjects: built-in partner catalog. Seeded into the DB on first
// boot; admins can edit entries afterwards.
var DefaultProjects = []Project{
	{
		ID:               "nitrodex",
		Name:             "NitroDex",
		Description:      "Decentralized trading platform with lightning-fast swaps",
		Website:          "https://www.nitrodex.xyz/",
		BadgeRequirement: 20,
		TaskTypes: []DailyTaskConfig{
			{Type: "dex_swap", DisplayName: "Daily Swap", DailyCeiling: 5, Link: "https://www.nitrodex.xyz/trade", Reward: "NitroDex Daily Trader Badge", VerifyDelayMs: 2000},
			{Type: "add_liquidity", DisplayName: "Daily Add Liquidity", DailyCeiling: 2, Link: "https://www.nitrodex.xyz/pool", Reward: "NitroDex Daily LP Badge", VerifyDelayMs: 3000},
		},
	},
	{
		ID:               "standard",
		Name:             "Standard",
		Description:      "Orderbook protocol for fully on-chain trading",
		Website:          "https://standardweb3.com/",
		BadgeRequirement: 20,
		TaskTypes: []DailyTaskConfig{
			{Type: "trade", DisplayName: "Daily Trade", DailyCeiling: 5, Reward: "Standard Daily Trader Badge", VerifyDelayMs: 2000},
		},
	},
	{
		ID:               "onchaingm",
		Name:             "OnchainGM",
		Description:      "Say GM onchain and deploy contracts",
		Website:          "https://onchaingm.com/",
		BadgeRequirement: 4,
		TaskTypes: []DailyTaskConfig{
			{Type: "deploy", DisplayName: "Daily Contract Deployment", DailyCeiling: 1, Reward: "OnchainGM Deployer Badge", VerifyDelayMs: 3500},
		},
	},
	{
		ID:               "kingdom",
		Name:             "For The Kingdom",
		Description:      "Fully on-chain strategy game",
		Website:          "https://forthekingdom.xyz/",
		BadgeRequirement: 4,
		TaskTypes: []DailyTaskConfig{
			{Type: "daily_checkin", DisplayName: "Daily Game Check-in", DailyCeiling: 1, Reward: "Kingdom Daily Badge", VerifyDelayMs: 2000},
		},
	},
	{
		ID:               "inarfi",
		Name:             "Inarfi",
		Description:      "Lending and borrowing protocol",
		Website:          "https://www.inarfi.xyz/",
		BadgeRequirement: 10,
		TaskTypes: []DailyTaskConfig{
			// One shared limit across deposit, borrow and repay.
			{Type: "deposit", DisplayName: "Daily Deposit", DailyCeiling: 3, GroupKey: "defi_actions", Reward: "Inarfi DeFi Badge", VerifyDelayMs: 2500},
			{Type: "borrow", DisplayName: "Daily Borrow", DailyCeiling: 3, GroupKey: "defi_actions", Reward: "Inarfi DeFi Badge", VerifyDelayMs: 2500},
			{Type: "repay", DisplayName: "Daily Repay", DailyCeiling: 3, GroupKey: "defi_actions", Reward: "Inarfi DeFi Badge", VerifyDelayMs: 2500},
		},
	},
	{
		ID:               "b3x",
		Name:             "B3X",
		Description:      "Perpetuals exchange for long and short positions",
		Website:          "https://b3x.ai/",
		BadgeRequirement: 15,
		TaskTypes: []DailyTaskConfig{
			// Long and short share one limit.
			{Type: "long_trade", DisplayName: "Daily Long Position", DailyCeiling: 3, GroupKey: "perp_trades", Reward: "B3X Trader Badge", VerifyDelayMs: 3000},
			{Type: "short_trade", DisplayName: "Daily Short Position", DailyCeiling: 3, GroupKey: "perp_trades", Reward: "B3X Trader Badge", VerifyDelayMs: 3000},
		},
	},
}
