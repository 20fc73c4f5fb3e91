package queue

import (
	"fmt"
	"strings"

	"github.com/tkhuang/riskcast/internal/domain"
)

func pendingKey(priority domain.Priority) string {
	return fmt.Sprintf("riskcast:queue:%s", priority)
}

func activeKey(priority domain.Priority) string {
	return fmt.Sprintf("riskcast:active:%s", priority)
}

// priorityFromKey recovers the priority lane from a pending queue key.
func priorityFromKey(key string) domain.Priority {
	idx := strings.LastIndex(key, ":")
	if idx == -1 {
		return domain.PriorityLow
	}
	p := domain.Priority(key[idx+1:])
	if !p.Valid() {
		return domain.PriorityLow
	}
	return p
}
