package kg

import "github.com/kejora-ai/orchestrator/pkg/types"

// defaultNodes and defaultEdges seed the Knowledge-Graph Index with the
// small set of entities/authorities/documents a first deployment needs to
// exercise knowledge_graph_search end to end (§4.L3): immigration, tax, and
// corporate-setup relationships for Indonesia, the domain this module
// reasons about. A production deployment loads a larger graph from its own
// ingest pipeline; this is the bundled starting point, following the
// teacher's pattern of loading fixed reference data read-only at startup
// (pkg/pipeline.defaultTopicInsights, pkg/tools.defaultPricingEntries).
var defaultNodes = []types.KGNode{
	{ID: "pt_pma", Label: "PT PMA", Type: "entity", Payload: map[string]any{"description": "foreign-owned limited liability company"}},
	{ID: "pt_pma_capital", Label: "PT PMA minimum capital", Type: "requirement", Payload: map[string]any{"amount_idr": 10_000_000_000}},
	{ID: "bkpm", Label: "BKPM", Type: "authority", Payload: map[string]any{"description": "Indonesia Investment Coordinating Board"}},
	{ID: "kitas", Label: "KITAS", Type: "document", Payload: map[string]any{"description": "limited-stay permit"}},
	{ID: "kitap", Label: "KITAP", Type: "document", Payload: map[string]any{"description": "permanent-stay permit"}},
	{ID: "imigrasi", Label: "Direktorat Jenderal Imigrasi", Type: "authority", Payload: map[string]any{"description": "Directorate General of Immigration"}},
	{ID: "work_permit", Label: "IMTA/RPTKA work permit", Type: "document", Payload: map[string]any{"description": "foreign worker employment authorization"}},
	{ID: "kemnaker", Label: "Kementerian Ketenagakerjaan", Type: "authority", Payload: map[string]any{"description": "Ministry of Manpower"}},
	{ID: "npwp", Label: "NPWP", Type: "document", Payload: map[string]any{"description": "taxpayer identification number"}},
	{ID: "djp", Label: "Direktorat Jenderal Pajak", Type: "authority", Payload: map[string]any{"description": "Directorate General of Taxes"}},
	{ID: "pph21", Label: "PPh 21", Type: "regulation", Payload: map[string]any{"description": "individual income tax withholding"}},
	{ID: "hak_pakai", Label: "Hak Pakai", Type: "regulation", Payload: map[string]any{"description": "right-to-use land title available to foreigners"}},
	{ID: "bpn", Label: "Badan Pertanahan Nasional", Type: "authority", Payload: map[string]any{"description": "National Land Agency"}},
}

var defaultEdges = []types.KGEdge{
	{Src: "pt_pma", Dst: "bkpm", Type: "regulated_by", Weight: 1},
	{Src: "pt_pma", Dst: "pt_pma_capital", Type: "requires", Weight: 1},
	{Src: "pt_pma", Dst: "npwp", Type: "must_obtain", Weight: 1},
	{Src: "pt_pma", Dst: "work_permit", Type: "may_sponsor", Weight: 2},
	{Src: "kitas", Dst: "imigrasi", Type: "issued_by", Weight: 1},
	{Src: "kitap", Dst: "imigrasi", Type: "issued_by", Weight: 1},
	{Src: "kitap", Dst: "kitas", Type: "upgrades_from", Weight: 1},
	{Src: "work_permit", Dst: "kemnaker", Type: "issued_by", Weight: 1},
	{Src: "work_permit", Dst: "kitas", Type: "prerequisite_for", Weight: 1},
	{Src: "npwp", Dst: "djp", Type: "issued_by", Weight: 1},
	{Src: "pph21", Dst: "djp", Type: "regulated_by", Weight: 1},
	{Src: "hak_pakai", Dst: "bpn", Type: "regulated_by", Weight: 1},
	{Src: "pt_pma", Dst: "hak_pakai", Type: "may_hold", Weight: 2},
}

// Seed populates g with the bundled default graph. It is additive: calling
// Seed on a non-empty Graph adds defaultNodes/defaultEdges alongside
// whatever the graph already holds, since AddNode replaces by ID and
// AddEdge only rejects dangling references.
func Seed(g *Graph) error {
	for _, n := range defaultNodes {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	for _, e := range defaultEdges {
		if err := g.AddEdge(e); err != nil {
			return err
		}
	}
	return nil
}
