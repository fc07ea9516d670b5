package main

import (
	"strings"
	"testing"

	"github.com/delaneyj/fiberparty/memhost"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpsCommitTheirRows(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		b := newBench(logger, legacy)
		container := b.root.Container().(*memhost.Node)

		for _, o := range ops(20) {
			_, hostOps, err := b.sample(o, 2)
			require.NoError(t, err, o.name)
			assert.Positive(t, hostOps, o.name)
			assert.Equal(t, len(b.rows), strings.Count(memhost.Markup(container), "<tr>"), o.name)
		}
	}
}
