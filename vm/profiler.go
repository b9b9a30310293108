package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Profiler tracks method invocation counts to decide when a method is hot
// enough to compile, and records the scope depth at which name lookups of
// compiled code resolve so later compilations can skip the walk.

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	InvocationCount uint64 // atomic
	IsHot           bool
}

// siteKey identifies one name lookup site.
type siteKey struct {
	method *Method
	pos    int
}

// resolution is the observed frame depth of a lookup site; -1 once two
// observations disagreed.
type resolution struct {
	depth atomic.Int64
	hits  atomic.Uint64
}

// Profiler manages profiling for all methods of a runtime.
type Profiler struct {
	methodProfiles sync.Map // *Method -> *MethodProfile
	sites          sync.Map // siteKey -> *resolution

	// MethodHotThreshold is the invocation count at which a method
	// becomes hot.
	MethodHotThreshold uint64

	// OnHot is called once per method when it becomes hot.
	OnHot func(m *Method, profile *MethodProfile)

	hotMethodCount uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{MethodHotThreshold: 100}
}

// RecordMethodInvocation increments the invocation count for a method.
// Returns true if this invocation caused the method to become hot.
func (p *Profiler) RecordMethodInvocation(m *Method) bool {
	if m == nil {
		return false
	}
	val, _ := p.methodProfiles.LoadOrStore(m, &MethodProfile{})
	profile := val.(*MethodProfile)

	count := atomic.AddUint64(&profile.InvocationCount, 1)
	if !profile.IsHot && count >= p.MethodHotThreshold {
		profile.IsHot = true
		atomic.AddUint64(&p.hotMethodCount, 1)
		if p.OnHot != nil {
			p.OnHot(m, profile)
		}
		return true
	}
	return false
}

// GetMethodProfile returns the profile for a method, or nil if not tracked.
func (p *Profiler) GetMethodProfile(m *Method) *MethodProfile {
	if val, ok := p.methodProfiles.Load(m); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// IsMethodHot returns true if the method has exceeded the hot threshold.
func (p *Profiler) IsMethodHot(m *Method) bool {
	profile := p.GetMethodProfile(m)
	return profile != nil && profile.IsHot
}

// RecordResolution notes that the lookup at pos in m resolved depth frames
// from the innermost frame.
func (p *Profiler) RecordResolution(m *Method, pos, depth int) {
	val, loaded := p.sites.LoadOrStore(siteKey{m, pos}, &resolution{})
	r := val.(*resolution)
	if !loaded {
		r.depth.Store(int64(depth))
	} else if r.depth.Load() != int64(depth) {
		r.depth.Store(-1)
	}
	r.hits.Add(1)
}

// StableDepth returns the depth the lookup at pos always resolved at, if
// it has been observed and never varied.
func (p *Profiler) StableDepth(m *Method, pos int) (int, bool) {
	val, ok := p.sites.Load(siteKey{m, pos})
	if !ok {
		return 0, false
	}
	d := val.(*resolution).depth.Load()
	return int(d), d >= 0
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalMethods      int
	HotMethods        int
	MethodInvocations uint64
	Sites             int
	StableSites       int
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methodProfiles.Range(func(_, value any) bool {
		profile := value.(*MethodProfile)
		stats.TotalMethods++
		stats.MethodInvocations += atomic.LoadUint64(&profile.InvocationCount)
		if profile.IsHot {
			stats.HotMethods++
		}
		return true
	})
	p.sites.Range(func(_, value any) bool {
		stats.Sites++
		if value.(*resolution).depth.Load() >= 0 {
			stats.StableSites++
		}
		return true
	})
	return stats
}

// HotMethods returns all methods that have exceeded the hot threshold,
// most invoked first.
func (p *Profiler) HotMethods() []*Method {
	type entry struct {
		m     *Method
		count uint64
	}
	var hot []entry
	p.methodProfiles.Range(func(key, value any) bool {
		profile := value.(*MethodProfile)
		if profile.IsHot {
			hot = append(hot, entry{key.(*Method), atomic.LoadUint64(&profile.InvocationCount)})
		}
		return true
	})
	sort.Slice(hot, func(i, j int) bool { return hot[i].count > hot[j].count })
	out := make([]*Method, len(hot))
	for i, e := range hot {
		out[i] = e.m
	}
	return out
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.methodProfiles = sync.Map{}
	p.sites = sync.Map{}
	atomic.StoreUint64(&p.hotMethodCount, 0)
}
