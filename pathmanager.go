package dap

import (
	"math/rand"
	"sync"
	"time"
)

// PathManagerOptions configures path enumeration and selection.
type PathManagerOptions struct {
	// Targets are the DoH/ODoH resolution endpoints.
	Targets []Target

	// NextHops are the relays allowed to sit directly behind the client
	// (odoh_relay_urls). Leaving this empty means Standard DoH: paths are
	// built straight to each Target with no relay.
	NextHops []Relay

	// MidRelays are additional relays (mid_relay_urls) that may be
	// inserted between the next hop and the target for MODoH chains.
	MidRelays []Relay

	// MaxMidRelays bounds how many MidRelays may appear in a single chain
	// (0..=MaxMidRelays, inclusive), mirroring target_config's
	// max_mid_relays.
	MaxMidRelays int

	// TargetRandomization picks a random target rather than always the
	// first eligible one.
	TargetRandomization bool

	// NextHopRandomization picks a random next-hop/relay-chain rather than
	// always the first.
	NextHopRandomization bool

	// ReactivateAfter controls how long an unhealthy path stays excluded
	// from selection before being tried again. Defaults to one minute.
	ReactivateAfter time.Duration
}

// PathManager enumerates every valid target/next-hop/relay-chain
// combination and hands out one on request, preferring healthy paths.
//
// Paths are organized in the three-level structure path_manage.rs
// documents: the first dimension indexes by target, the second by next
// hop, the third by mid-relay chain built on that next hop. Keeping the
// next-hop dimension distinct from the chain dimension (rather than
// flattening both into one slice) lets target and next-hop randomization
// be applied independently, per spec design note §9: NextHopRandomization
// picks uniformly among next hops regardless of how many mid-relay chains
// each one happens to have.
type PathManager struct {
	mu    sync.RWMutex
	paths [][][]*Path // paths[targetIdx][nextHopIdx][chainIdx]
	opt   PathManagerOptions
	rnd   *rand.Rand
}

// NewPathManager builds every loop-free target/relay-chain combination
// implied by opt and returns a manager ready for GetPath.
func NewPathManager(opt PathManagerOptions) *PathManager {
	if opt.ReactivateAfter == 0 {
		opt.ReactivateAfter = time.Minute
	}
	pm := &PathManager{
		opt: opt,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	pm.paths = pm.build()
	return pm
}

// build constructs the full path matrix: for Standard DoH (no next hops
// configured) one path per target, in a single next-hop group of its own;
// for Oblivious DoH, one next-hop group per target per next hop, each
// holding one path per mid-relay permutation built on that next hop,
// discarding any chain that would loop back through the target or a relay
// it already used.
func (pm *PathManager) build() [][][]*Path {
	if len(pm.opt.NextHops) == 0 {
		paths := make([][][]*Path, 0, len(pm.opt.Targets))
		for _, target := range pm.opt.Targets {
			paths = append(paths, [][]*Path{{NewPath(target, Standard)}})
		}
		return paths
	}

	midPerms := midPermutations(pm.opt.MidRelays, pm.opt.MaxMidRelays)

	paths := make([][][]*Path, 0, len(pm.opt.Targets))
	for _, target := range pm.opt.Targets {
		perTarget := make([][]*Path, 0, len(pm.opt.NextHops))
		for _, nh := range pm.opt.NextHops {
			var chains []*Path
			for _, perm := range midPerms {
				chain := make([]Relay, 0, len(perm)+1)
				chain = append(chain, nh)
				chain = append(chain, perm...)
				if hasLoop(target, chain) {
					continue
				}
				chains = append(chains, NewPath(target, Oblivious, chain...))
			}
			perTarget = append(perTarget, chains)
		}
		paths = append(paths, perTarget)
	}
	return paths
}

// midPermutations returns every ordered selection of 0..=maxMid mid
// relays, mirroring path_manage.rs's use of itertools::permutations over
// 0..=max_mid_relays elements at a time.
func midPermutations(midRelays []Relay, maxMid int) [][]Relay {
	if maxMid > len(midRelays) {
		maxMid = len(midRelays)
	}
	var midPerms [][]Relay
	for n := 0; n <= maxMid; n++ {
		midPerms = append(midPerms, permutations(midRelays, n)...)
	}
	return midPerms
}

// permutations returns every ordered selection of k distinct elements
// from items (k=0 yields a single empty selection).
func permutations(items []Relay, k int) [][]Relay {
	if k == 0 {
		return [][]Relay{{}}
	}
	if k > len(items) {
		return nil
	}
	var out [][]Relay
	for i, item := range items {
		rest := make([]Relay, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, sub := range permutations(rest, k-1) {
			chain := make([]Relay, 0, k)
			chain = append(chain, item)
			chain = append(chain, sub...)
			out = append(out, chain)
		}
	}
	return out
}

// GetPath selects one path, applying target and next-hop randomization
// independently as configured, preferring a healthy path but falling back
// to any path (even unhealthy) rather than returning ErrNoPath if at least
// one exists - a transient failure shouldn't make resolution impossible.
func (pm *PathManager) GetPath() (*Path, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if len(pm.paths) == 0 {
		return nil, ErrNoPath
	}

	targetIdx := 0
	if pm.opt.TargetRandomization {
		targetIdx = pm.rnd.Intn(len(pm.paths))
	}

	// If the randomly chosen target has no viable next hop, fall back to
	// scanning every target for one that does.
	order := make([]int, 0, len(pm.paths))
	order = append(order, targetIdx)
	for i := range pm.paths {
		if i != targetIdx {
			order = append(order, i)
		}
	}

	var anyPath *Path
	for _, ti := range order {
		nextHopGroups := pm.paths[ti]
		if p := pm.pickFromNextHopGroups(nextHopGroups, true); p != nil {
			return p, nil
		}
		if anyPath == nil {
			anyPath = pm.pickFromNextHopGroups(nextHopGroups, false)
		}
	}
	if anyPath != nil {
		return anyPath, nil
	}
	return nil, ErrNoPath
}

// pickFromNextHopGroups picks a next hop independently of which mid-relay
// chain it ends up using: NextHopRandomization orders the next-hop groups
// themselves uniformly at random, then each group's own chain is picked by
// pickHealthy/pickAny, so a next hop with many mid-relay permutations is no
// more likely to be chosen than one with a single chain.
func (pm *PathManager) pickFromNextHopGroups(groups [][]*Path, healthyOnly bool) *Path {
	if len(groups) == 0 {
		return nil
	}
	nextHopIdx := 0
	if pm.opt.NextHopRandomization {
		nextHopIdx = pm.rnd.Intn(len(groups))
	}
	order := make([]int, 0, len(groups))
	order = append(order, nextHopIdx)
	for i := range groups {
		if i != nextHopIdx {
			order = append(order, i)
		}
	}
	for _, gi := range order {
		chains := groups[gi]
		if len(chains) == 0 {
			continue
		}
		if healthyOnly {
			if p := pm.pickHealthy(chains); p != nil {
				return p
			}
			continue
		}
		return pm.pickAny(chains)
	}
	return nil
}

func (pm *PathManager) pickHealthy(chains []*Path) *Path {
	var healthy []*Path
	for _, p := range chains {
		if p.IsHealthy() {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		return nil
	}
	if pm.opt.NextHopRandomization {
		return healthy[pm.rnd.Intn(len(healthy))]
	}
	return healthy[0]
}

func (pm *PathManager) pickAny(chains []*Path) *Path {
	if pm.opt.NextHopRandomization {
		return chains[pm.rnd.Intn(len(chains))]
	}
	return chains[0]
}

// MarkUnhealthy flags p unhealthy and schedules it to be re-enabled after
// ReactivateAfter, mirroring the corpus's random.go deactivate/
// reactivateLater pattern for resolver groups.
func (pm *PathManager) MarkUnhealthy(p *Path) {
	p.MarkUnhealthy()
	Log.Debug("path marked unhealthy", "target", p.Target.Authority)
	go func() {
		time.Sleep(pm.opt.ReactivateAfter)
		p.MarkHealthy()
		Log.Debug("path reactivated", "target", p.Target.Authority)
	}()
}

// AllPaths returns every constructed path across every target.
func (pm *PathManager) AllPaths() []*Path {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	var all []*Path
	for _, nextHopGroups := range pm.paths {
		for _, chains := range nextHopGroups {
			all = append(all, chains...)
		}
	}
	return all
}
