package domain

// SubtypeForAccession maps a GISAID reference accession from the sample
// manifest to the RSV subtype submitters were asked to sequence.
func SubtypeForAccession(accession string) string {
	if accession == ReferenceAccessionB {
		return SubtypeB
	}
	return SubtypeA
}

// DisplaySubtype turns a SubtypeCall into the subtype name shown to
// participants, given the subtype the sample was intended to be.
func DisplaySubtype(call SubtypeCall, intended string) string {
	switch call {
	case SubtypeOriginal:
		return intended
	case SubtypeAlternative:
		if intended == SubtypeA {
			return SubtypeB
		}
		return SubtypeA
	default:
		// Anything else (including the "N/A" sentinel from a failed parse)
		// passes through verbatim.
		return string(call)
	}
}

// ResolveSubtype decides which reference a consensus genome actually matches
// from the Nextclade alignment scores. When the alternative-reference run is
// present the lower of the two scores wins; equal scores are inconclusive.
// Without an alternative run, a positive score confirms the original
// reference and anything else is inconclusive.
func ResolveSubtype(score Metric, altScore Metric) SubtypeCall {
	if !score.Valid {
		return SubtypeUnknown
	}
	if altScore.Valid {
		switch {
		case score.Value < altScore.Value:
			return SubtypeOriginal
		case score.Value > altScore.Value:
			return SubtypeAlternative
		default:
			return SubtypeUnknown
		}
	}
	if score.Value > 0 {
		return SubtypeOriginal
	}
	return SubtypeUnknown
}
