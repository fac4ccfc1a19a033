package rulestore

import "github.com/haukened/rr-guard/internal/guard/domain"

// nopCache is used when no CacheFactory is configured or the factory fails.
type nopCache struct{}

func (nopCache) Get(string) (domain.Decision, bool) { return domain.Decision{}, false }
func (nopCache) Put(string, domain.Decision)        {}
func (nopCache) Len() int                           { return 0 }
func (nopCache) Purge()                             {}
func (nopCache) Stats() (uint64, uint64, uint64)    { return 0, 0, 0 }

var _ DecisionCache = nopCache{}
