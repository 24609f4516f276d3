package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"hi", Greeting},
		{"hello there", Greeting},
		{"thanks!", Casual},
		{"What are PT PMA requirements?", BusinessComplex},
		{"I need a long-term expansion strategy for three entities", BusinessStrategic},
		{"my golang function throws exception: nil pointer", DevAICode},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.text), tc.text)
	}
}

func TestIsConversational(t *testing.T) {
	assert.True(t, IsConversational(Greeting))
	assert.True(t, IsConversational(Casual))
	assert.False(t, IsConversational(BusinessSimple))
}

func TestIsComplex_NeverEarlyExitsAfterOneRetrieval(t *testing.T) {
	assert.True(t, IsComplex(BusinessComplex))
	assert.True(t, IsComplex(BusinessStrategic))
	assert.True(t, IsComplex(DevAICode))
	assert.False(t, IsComplex(BusinessSimple))
	assert.False(t, IsComplex(Greeting))
}
