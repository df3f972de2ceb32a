package utils

import (
	"fmt"
	"time"
)

// FormatElapsed：耗时的可读表示，30s 内用毫秒，90s 内用秒，90 分钟内用分钟，否则用小时
func FormatElapsed(d time.Duration) string {
	s := d.Seconds()
	switch {
	case s < 30:
		return fmt.Sprintf("%d ms", d.Milliseconds())
	case s < 90:
		return fmt.Sprintf("%.2f seconds", s)
	case d < 90*time.Minute:
		return fmt.Sprintf("%.2f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.2f hours", d.Hours())
}
