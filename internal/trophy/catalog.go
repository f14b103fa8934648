// Package trophy tracks the easter-egg trophies a guest finds on the invitation site.
// The catalog is shared with the server, which only ever grows a guest's stored set.
package trophy

// Trophy is one discoverable easter egg.
type Trophy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Catalog lists every trophy in display order. Finding all of them earns platinum.
var Catalog = []Trophy{
	{ID: "nintendo", Name: "Primeira Quest", Description: "Descobriu as origens gamer", Icon: "🎮"},
	{ID: "ragnarok", Name: "Nostalgia Online", Description: "Relembrou os tempos de RO", Icon: "⚔️"},
	{ID: "cosplay", Name: "Cosplayer Secreto", Description: "Encontrou o alter ego", Icon: "⚡"},
	{ID: "lol", Name: "Streamer Aposentado", Description: "Achou as provas da era LoL", Icon: "🏆"},
	{ID: "programming", Name: "Código Competitivo", Description: "Revelou o passado de maratonista", Icon: "💻"},
	{ID: "clea", Name: "Player 2 Found", Description: "Conheceu a co-op partner", Icon: "❤️"},
	{ID: "pets", Name: "Pai de Pet Revelado", Description: "Viu os companheiros peludos", Icon: "🐕"},
	{ID: "boardgames", Name: "Colecionador", Description: "Encontrou a coleção secreta", Icon: "🎲"},
	{ID: "teatro", Name: "Crítico de Teatro", Description: "Explorou o acervo teatral", Icon: "🎭"},
}

// Total is the number of trophies in the catalog.
func Total() int { return len(Catalog) }

// Lookup returns the catalog entry for id.
func Lookup(id string) (Trophy, bool) {
	for _, t := range Catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Trophy{}, false
}

// Known reports whether id is in the catalog.
func Known(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// Merge returns the union of both sets in catalog order. Unknown ids are dropped.
func Merge(existing, incoming []string) []string {
	have := make(map[string]bool, len(existing)+len(incoming))
	for _, id := range existing {
		have[id] = true
	}
	for _, id := range incoming {
		have[id] = true
	}
	out := make([]string, 0, len(have))
	for _, t := range Catalog {
		if have[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}
