package control

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"LecturerVote/config"
	"LecturerVote/db"
)

// Catalog 管理可选的课程列表
type Catalog struct {
	store  db.Store
	policy string

	mu       sync.RWMutex
	defaults []string
}

func NewCatalog(store db.Store, defaults []string, policy string) *Catalog {
	c := &Catalog{store: store, policy: policy}
	c.SetDefaults(defaults)
	return c
}

// Defaults 返回默认课程列表的副本
func (c *Catalog) Defaults() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.defaults...)
}

// SetDefaults 替换默认课程列表，配置热更新时调用
func (c *Catalog) SetDefaults(defaults []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults = append([]string(nil), defaults...)
}

// Initialize 把默认课程写入 courses:list。
// additive 只补充缺失的课程；destructive 先清空再全部写入，会丢掉后来添加的课程。
// 单个课程写入失败只记录日志，继续处理剩下的。
func (c *Catalog) Initialize(ctx context.Context) error {
	defaults := c.Defaults()
	logger.WithField("policy", c.policy).Info("initializing course catalog")

	if c.policy == config.ReseedDestructive {
		if err := c.store.Delete(ctx, coursesKey); err != nil {
			logger.WithError(err).Error("failed to clear course list")
			return err
		}
	}

	var (
		failed  int
		lastErr error
	)
	for _, course := range defaults {
		added, err := c.store.SetAdd(ctx, coursesKey, course)
		if err != nil {
			logger.WithError(err).WithField("course", course).Error("failed to add course")
			failed++
			lastErr = err
			continue
		}
		if added {
			logger.WithField("course", course).Info("course added")
		}
	}
	if lastErr != nil {
		return fmt.Errorf("seed %d of %d courses failed: %w", failed, len(defaults), lastErr)
	}
	logger.Info("course catalog initialized")
	return nil
}

// ListSections 返回所有课程，按字典序排列。存储为空时返回默认列表。
func (c *Catalog) ListSections(ctx context.Context) ([]string, error) {
	sections, err := c.store.SetMembers(ctx, coursesKey)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return c.Defaults(), nil
	}
	sort.Strings(sections)
	return sections, nil
}

// AddSection 添加一门课程，已存在时返回 false
func (c *Catalog) AddSection(ctx context.Context, section string) (bool, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return false, fmt.Errorf("%w: courseSection is required", ErrInvalidArgument)
	}
	return c.store.SetAdd(ctx, coursesKey, section)
}
