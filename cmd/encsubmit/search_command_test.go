package main

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchParams(t *testing.T) {
	assert := assert.New(t)

	params, err := searchParams([]string{
		"type=Experiment",
		"assay_term_name=ChIP-seq",
		"status=",
	})
	assert.Nil(err)
	assert.Equal(url.Values{
		"type":            []string{"Experiment"},
		"assay_term_name": []string{"ChIP-seq"},
		"status":          []string{""},
	}, params)

	_, err = searchParams([]string{"no-equals-sign"})
	assert.NotNil(err)
	_, err = searchParams([]string{"=value"})
	assert.NotNil(err)
}
