package program

import (
	"strconv"
	"strings"
)

// Keywords is the minimum substitution set a Queue always defines, per
// spec §4.4, plus whatever free-form entries the job itself carries
// (spec §3 "keywords").
type Keywords map[string]string

// Get resolves a single "$$key$$" reference, returning "" for an unknown
// key — matching the original's behavior of leaving unresolved tokens
// blank rather than erroring, since launch templates are free-form shell
// text supplied by queue configuration, not validated grammar.
func (k Keywords) Get(key string) string { return k[key] }

// Expand resolves a Queue's launchTemplate against a Program's rendered
// invocation and the job's keywords, per spec §4.4's expansion order:
// first "$$programExecution$$" is replaced by Invocation(), then every
// "$$key$$" pair from keywords is substituted.
func Expand(launchTemplate string, p Program, keywords Keywords) string {
	invocation := p.Invocation(keywords.Get)

	script := strings.ReplaceAll(launchTemplate, "$$programExecution$$", invocation)
	for key, value := range keywords {
		script = strings.ReplaceAll(script, "$$"+key+"$$", value)
	}
	return script
}

// BaseKeywords builds the minimum keyword set spec §4.4 requires for every
// job: moleQueueId, numberOfCores, maxWallTime, inputFileName,
// inputFileBaseName, outputFileName. remoteWorkingDir is added separately
// by remote queues, which have a directory the local queue does not.
func BaseKeywords(moleQueueID, numberOfCores, maxWallTime int64, inputFileName, inputFileBaseName, outputFileName string) Keywords {
	return Keywords{
		"moleQueueId":       strconv.FormatInt(moleQueueID, 10),
		"numberOfCores":     strconv.FormatInt(numberOfCores, 10),
		"maxWallTime":       strconv.FormatInt(maxWallTime, 10),
		"inputFileName":     inputFileName,
		"inputFileBaseName": inputFileBaseName,
		"outputFileName":    outputFileName,
	}
}
