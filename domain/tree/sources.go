package tree

// Source identifies a research source a ResearchSpec can point at.
type Source string

const (
	SourceOpenAlex        Source = "openalex"
	SourceSemanticScholar Source = "semantic_scholar"
	SourceArxiv           Source = "arxiv"
	SourcePubMed          Source = "pubmed"
	SourceWikipedia       Source = "wikipedia"
	SourceReddit          Source = "reddit"
	SourceScienceDaily    Source = "sciencedaily"
	SourcePhysOrg         Source = "phys_org"
	SourceMITTechReview   Source = "mit_tech_review"
	SourceIEEESpectrum    Source = "ieee_spectrum"
	SourceFrontiers       Source = "frontiers"
	SourceHackaday        Source = "hackaday"
)

// KnownSources is the fixed set of research sources, in prompt order.
var KnownSources = []Source{
	SourceOpenAlex,
	SourceSemanticScholar,
	SourceArxiv,
	SourcePubMed,
	SourceWikipedia,
	SourceReddit,
	SourceScienceDaily,
	SourcePhysOrg,
	SourceMITTechReview,
	SourceIEEESpectrum,
	SourceFrontiers,
	SourceHackaday,
}

// IsKnownSource reports whether s names one of KnownSources.
func IsKnownSource(s string) bool {
	for _, known := range KnownSources {
		if string(known) == s {
			return true
		}
	}
	return false
}
