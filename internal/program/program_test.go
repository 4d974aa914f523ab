package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvocationPlain(t *testing.T) {
	p := Program{Executable: "sleep", Arguments: "2", Syntax: Plain}
	assert.Equal(t, "sleep 2", p.Invocation(nil))
}

func TestInvocationInputArg(t *testing.T) {
	p := Program{Executable: "prog", Arguments: "-v", Syntax: InputArg}
	got := p.Invocation(func(k string) string {
		if k == "inputFileName" {
			return "job.in"
		}
		return ""
	})
	assert.Equal(t, "prog -v job.in", got)
}

func TestInvocationRedirect(t *testing.T) {
	p := Program{Executable: "prog", Syntax: Redirect}
	kw := Keywords{"inputFileName": "job.in", "outputFileName": "job.out"}
	assert.Equal(t, "prog < job.in > job.out", p.Invocation(kw.Get))
}

func TestExpandSubstitutesProgramExecutionThenKeywords(t *testing.T) {
	p := Program{Executable: "prog", Syntax: Plain}
	kw := Keywords{"moleQueueId": "42", "numberOfCores": "4"}
	tmpl := "#!/bin/sh\n# cores=$$numberOfCores$$\n$$programExecution$$\n# id=$$moleQueueId$$\n"

	got := Expand(tmpl, p, kw)
	assert.Contains(t, got, "prog")
	assert.Contains(t, got, "cores=4")
	assert.Contains(t, got, "id=42")
}

func TestBaseKeywords(t *testing.T) {
	kw := BaseKeywords(7, 2, 60, "job.in", "job", "job.out")
	assert.Equal(t, "7", kw["moleQueueId"])
	assert.Equal(t, "2", kw["numberOfCores"])
	assert.Equal(t, "60", kw["maxWallTime"])
}
