package report

import (
	"fmt"
	"sort"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// majorityCounter tallies categorical values and resolves ties in favor of
// the value seen first, with labs visited in lexicographic order.
type majorityCounter struct {
	counts map[string]int
	order  []string
}

func newMajorityCounter() *majorityCounter {
	return &majorityCounter{counts: map[string]int{}}
}

func (c *majorityCounter) Add(value string) {
	if value == "" {
		return
	}
	if _, seen := c.counts[value]; !seen {
		c.order = append(c.order, value)
	}
	c.counts[value]++
}

func (c *majorityCounter) Winner() string {
	winner := ""
	best := 0
	for _, v := range c.order {
		if c.counts[v] > best {
			winner = v
			best = c.counts[v]
		}
	}
	return winner
}

// PeerAggregate computes the cross-lab mean metrics for one sample,
// excluding the requesting lab and the reference lab. Only scoreable records
// contribute. Categorical fields are majority votes among the contributors.
//
// The depth mean divides the sum of the depths that were actually reported
// by the full contributor count, so labs without depth data drag the mean
// down. That is the established behavior of the published reports and is
// kept intact.
func PeerAggregate(labs map[string]domain.EnrichedMetrics, self string) domain.AggregateRecord {
	var coverageSum, nsSum, similaritySum, depthSum float64
	count := 0
	clades := newMajorityCounter()
	legacyClades := newMajorityCounter()
	subtypes := newMajorityCounter()

	for _, lab := range sortedKeys(labs) {
		if lab == self || lab == domain.ReferenceLab {
			continue
		}
		m := labs[lab]
		if !m.Scoreable() {
			continue
		}
		coverageSum += m.Coverage.Value
		nsSum += m.AmbiguousPct.Value
		similaritySum += m.Similarity.Value
		if m.MeanDepth.Valid {
			depthSum += m.MeanDepth.Value
		}
		count++

		clades.Add(m.Clade)
		legacyClades.Add(m.LegacyClade)
		subtypes.Add(string(m.SubtypeCall))
	}

	record := domain.AggregateRecord{
		LabCount:    count,
		Clade:       clades.Winner(),
		LegacyClade: legacyClades.Winner(),
		SubtypeCall: domain.SubtypeCall(subtypes.Winner()),
	}
	if count == 0 {
		record.CoveragePct = domain.NewMetric(0)
		record.AmbiguousPct = domain.NewMetric(0)
		record.Similarity = domain.NewMetric(0)
		record.MeanDepth = domain.NewMetric(0)
		return record
	}

	n := float64(count)
	record.CoveragePct = domain.NewMetric(coverageSum / n * 100).Rounded(2)
	record.AmbiguousPct = domain.NewMetric(nsSum / n).Rounded(2)
	record.Similarity = domain.NewMetric(similaritySum / n).Rounded(2)
	record.MeanDepth = domain.NewMetric(depthSum / n).Rounded(2)
	return record
}

// OthersLabel renders the synthetic peer-aggregate row's participant name.
func OthersLabel(count int) string {
	return fmt.Sprintf("Others (%d)", count)
}

type platformAccumulator struct {
	coverageSum, nsSum, similaritySum, depthSum float64
	count, readCount                            int
	clades, legacyClades                        *majorityCounter
}

// PlatformAggregates groups one sample's submissions by declared sequencing
// platform and computes per-group mean metrics. There is no self or
// reference exclusion here. A submission declaring several platforms
// contributes to each of them. Groups are created for every declared
// platform even when none of its submissions is scoreable.
func PlatformAggregates(labs map[string]domain.EnrichedMetrics) []domain.PlatformAggregate {
	groups := map[string]*platformAccumulator{}

	for _, lab := range sortedKeys(labs) {
		m := labs[lab]
		for _, platform := range m.PlatformTokens() {
			group, ok := groups[platform]
			if !ok {
				group = &platformAccumulator{
					clades:       newMajorityCounter(),
					legacyClades: newMajorityCounter(),
				}
				groups[platform] = group
			}
			if !m.Scoreable() {
				continue
			}
			group.coverageSum += m.Coverage.Value
			group.nsSum += m.AmbiguousPct.Value
			group.similaritySum += m.Similarity.Value
			if m.MeanDepth.Valid {
				group.depthSum += m.MeanDepth.Value
				group.readCount++
			}
			group.count++
			group.clades.Add(m.Clade)
			group.legacyClades.Add(m.LegacyClade)
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	aggregates := make([]domain.PlatformAggregate, 0, len(names))
	for _, name := range names {
		group := groups[name]
		agg := domain.PlatformAggregate{
			Platform:  name,
			Label:     fmt.Sprintf("%s (%d)", name, group.count),
			Count:     group.count,
			ReadCount: group.readCount,
		}
		if group.count > 0 {
			n := float64(group.count)
			agg.CoveragePct = domain.NewMetric(group.coverageSum / n * 100).Rounded(2)
			agg.AmbiguousPct = domain.NewMetric(group.nsSum / n).Rounded(2)
			agg.Similarity = domain.NewMetric(group.similaritySum / n).Rounded(2)
			agg.Clade = group.clades.Winner()
			agg.LegacyClade = group.legacyClades.Winner()
			if group.readCount > 0 {
				agg.MeanDepth = domain.NewMetric(group.depthSum / float64(group.readCount)).Rounded(2)
			}
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates
}
