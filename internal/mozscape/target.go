package mozscape

// Target 决定请求形态：SingleTarget 走 GET，BatchTargets 走 POST。
// 只有本包内的两种类型实现了它。
type Target interface {
	isTarget()
}

// SingleTarget 单个域名或 URL。
type SingleTarget string

// BatchTargets 批量查询，哪怕只有一个元素也按批量发送。
type BatchTargets []string

func (SingleTarget) isTarget() {}
func (BatchTargets) isTarget() {}

// Len 返回目标个数。
func Len(t Target) int {
	switch v := t.(type) {
	case SingleTarget:
		return 1
	case BatchTargets:
		return len(v)
	default:
		return 0
	}
}

// IDs 把目标展开成字符串列表，顺序与输入一致。
func IDs(t Target) []string {
	switch v := t.(type) {
	case SingleTarget:
		return []string{string(v)}
	case BatchTargets:
		return append([]string(nil), v...)
	default:
		return nil
	}
}
