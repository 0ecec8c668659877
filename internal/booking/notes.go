package booking

import (
	"strings"

	"studiotblack/internal/model"
)

// BuildNotes renders the preference fields into the booking notes column.
func BuildNotes(service model.Service, silent bool, notes string) string {
	var b strings.Builder
	b.WriteString("Serviço: ")
	b.WriteString(service.Name)
	b.WriteString(" | Atendimento silencioso: ")
	if silent {
		b.WriteString("Sim")
	} else {
		b.WriteString("Não")
	}
	if n := strings.TrimSpace(notes); n != "" {
		b.WriteString(" | Observações: ")
		b.WriteString(n)
	}
	return b.String()
}
