package analytics

import "strings"

// HideMid 将字符串中间 count 个字符替换为 fix，首尾各至少保留一个字符
func HideMid(info string, count int, fix string) string {
	runes := []rune(info)
	n := len(runes)
	if n <= 2 {
		return info
	}
	if count >= n-2 {
		return string(runes[0]) + strings.Repeat(fix, n-2) + string(runes[n-1])
	}
	mid := n / 2
	offset := count / 2
	end := mid + offset
	if count%2 != 0 {
		end++
	}
	return string(runes[:mid-offset]) + strings.Repeat(fix, count) + string(runes[end:])
}

// HideAll 完全匿名：保留UID首尾各两位
func HideAll(uid string) string {
	if len(uid) < 4 {
		return "已匿名" + uid
	}
	return "已匿名" + uid[:2] + uid[len(uid)-2:]
}
