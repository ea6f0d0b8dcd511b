// Package naming 把源文件名规范化为数据集中的名称。
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// separators 在提取日期后从名称两端去除
const separators = "-':.!,\r\n\t\f\v "

const sep = `[-':\.!,\s]?`

var (
	dateTimePattern = regexp.MustCompile(
		`(20[012]\d)` + sep + `(\d{2})` + sep + `(\d{2})` + `T?` +
			`(\d{2})` + sep + `(\d{2})` + sep + `(\d{2})` +
			`(Z|[+-][01]\d:\d{2}|[+-][01]\d\d{2}|[+-][01]\d)?`)
	datePattern = regexp.MustCompile(`(20[012]\d)` + sep + `(\d{2})` + sep + `(\d{2})`)
)

// CamelToSnake 把 "DVSFlowRecording 01" 这样的名称转换为 "dvs_flow_recording_01"
// 空白、'.'、'-'、'(' 和 ')' 替换为 '_'
func CamelToSnake(s string) string {
	var out []rune
	lower := false
	manyUpper := false
	for i, c := range []rune(s) {
		switch {
		case unicode.IsUpper(c):
			if lower {
				out = append(out, '_', unicode.ToLower(c))
			} else {
				out = append(out, unicode.ToLower(c))
				manyUpper = i > 0
			}
			lower = false
		case unicode.IsSpace(c) || strings.ContainsRune(".-()_", c):
			out = append(out, '_')
			lower = false
			manyUpper = false
		default:
			if manyUpper {
				// 连续大写之后的小写字母：最后一个大写字母属于新单词
				last := out[len(out)-1]
				out = append(out[:len(out)-1], '_', last, c)
			} else {
				out = append(out, c)
			}
			lower = true
			manyUpper = false
		}
	}
	return string(out)
}

// StemAndDate 从文件名主干中提取 ISO-8601 日期，并返回剩余部分的 snake_case 名称
//
// 先去掉第一个匹配的前缀和第一个匹配的后缀；优先匹配日期时间 (可带时区)，
// 其次匹配纯日期。date 为空字符串表示没有找到日期；UTC 时间以 "Z" 结尾。
func StemAndDate(stem string, trimPrefixes, trimSuffixes []string) (name string, date string, err error) {
	stem = strings.TrimSpace(stem)
	for _, prefix := range trimPrefixes {
		if strings.HasPrefix(stem, prefix) {
			stem = stem[len(prefix):]
			break
		}
	}
	for _, suffix := range trimSuffixes {
		if strings.HasSuffix(stem, suffix) {
			stem = stem[:len(stem)-len(suffix)]
			break
		}
	}

	var loc []int
	if m := dateTimePattern.FindStringSubmatchIndex(stem); m != nil {
		loc = m
		date, err = dateTime(stem, m)
	} else if m := datePattern.FindStringSubmatchIndex(stem); m != nil {
		loc = m
		date, err = dateOnly(stem, m)
	}
	if err != nil {
		return "", "", err
	}
	if loc != nil {
		stem = stem[:loc[0]] + stem[loc[1]:]
	}
	return CamelToSnake(strings.Trim(stem, separators)), date, nil
}

// group 返回第 i 个捕获组，未参与匹配时返回空字符串
func group(s string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

func atoi(s string, m []int, i int) int {
	n, _ := strconv.Atoi(group(s, m, i))
	return n
}

func dateTime(s string, m []int) (string, error) {
	loc := time.UTC
	switch zone := group(s, m, 7); zone {
	case "", "Z":
	default:
		// "+05:30" / "+0530" / "+05"
		hours, _ := strconv.Atoi(zone[:3])
		minutes := 0
		if len(zone) > 3 {
			minutes, _ = strconv.Atoi(zone[:1] + zone[len(zone)-2:])
		}
		loc = time.FixedZone("", hours*3600+minutes*60)
	}
	return build(atoi(s, m, 1), atoi(s, m, 2), atoi(s, m, 3), atoi(s, m, 4), atoi(s, m, 5), atoi(s, m, 6), loc)
}

func dateOnly(s string, m []int) (string, error) {
	return build(atoi(s, m, 1), atoi(s, m, 2), atoi(s, m, 3), 0, 0, 0, time.UTC)
}

// build 拒绝 time.Date 会静默规范化的非法日期 (例如 13 月)
func build(year, month, day, hour, minute, second int, loc *time.Location) (string, error) {
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if t.Month() != time.Month(month) || t.Day() != day || t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return "", fmt.Errorf("invalid date %04d-%02d-%02dT%02d:%02d:%02d", year, month, day, hour, minute, second)
	}
	return t.Format("2006-01-02T15:04:05Z07:00"), nil
}
