package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitQueries(t *testing.T) {
	assert.Equal(t, []string{"plumbers"}, splitQueries("plumbers"))
	assert.Equal(t, []string{"plumbers", "roofers"}, splitQueries("plumbers, roofers"))
	assert.Equal(t, []string{"plumbers"}, splitQueries("plumbers,,  "))
}

func TestCourtesyRPS(t *testing.T) {
	assert.Equal(t, 1.0, courtesyRPS(0))
	assert.Equal(t, 2.0, courtesyRPS(500))
	assert.Equal(t, 1.0, courtesyRPS(1000))
}

func TestCommandTreeRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"harvest", "enrich", "dedupe", "import", "export",
		"smartlist", "leads", "costs", "config", "serve",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
