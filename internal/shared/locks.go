package shared

import "fmt"

// AchievementLockKey builds the lock key guarding review and re-submission of
// a single achievement.
func AchievementLockKey(achievementID int64) string {
	return fmt.Sprintf("achievement:%d:review:lock", achievementID)
}
