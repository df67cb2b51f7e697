package interfaces

// Timestamped 带时间戳（秒）的外部记录，分页增量拉取按它定位游标
type Timestamped interface {
	Timestamp() int64
}
