package worker

import (
	"fmt"
	"os"
	"text/template"
)

// deckTemplate is a minimal stand-in for the real HPL.dat input deck. The
// numeric correctness of HPL is an external collaborator's concern, not
// this core's; all that matters here is that the file exists with the P,
// Q, N and NB the caller asked for, because the worker's job is to manage
// the process lifecycle around xhpl, not to validate its math.
var deckTemplate = template.Must(template.New("hpl-deck").Parse(
	`HPLinpack benchmark input file
HPL.out      output file name
6            device out (6=stdout,7=stderr,file)
1            # of problems sizes (N)
{{.NValue}}  Ns
1            # of NBs
{{.NB}}      NBs
0            PMAP process mapping
1            # of process grids (P x Q)
{{.PS}}      Ps
{{.QS}}      Qs
16.0         threshold
`))

type deckParams struct {
	NValue, NB, PS, QS int
}

// writeInputDeck renders deckTemplate to path using p. A template render
// failure is a configuration error on the job that requested it.
func writeInputDeck(path string, p Params) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("worker: create input deck %s: %w", path, err)
	}
	defer f.Close()

	return deckTemplate.Execute(f, deckParams{NValue: p.NValue, NB: p.NB, PS: p.PS, QS: p.QS})
}
