package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQuery_Defaults(t *testing.T) {
	filter, err := ListQuery("", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, filter.Skip)
	assert.Equal(t, DefaultLimit, filter.Limit)
	assert.Nil(t, filter.Platform)
	assert.Nil(t, filter.Processed)
}

func TestListQuery_Values(t *testing.T) {
	filter, err := ListQuery("20", "1000", "claude", "yes")
	require.NoError(t, err)
	assert.Equal(t, 20, filter.Skip)
	assert.Equal(t, MaxLimit, filter.Limit)
	require.NotNil(t, filter.Platform)
	assert.Equal(t, "claude", *filter.Platform)
	require.NotNil(t, filter.Processed)
	assert.True(t, *filter.Processed)

	filter, err = ListQuery("0", "1", "", "False")
	require.NoError(t, err)
	assert.Equal(t, 1, filter.Limit)
	require.NotNil(t, filter.Processed)
	assert.False(t, *filter.Processed)
}

func TestListQuery_Rejections(t *testing.T) {
	cases := []struct {
		skip, limit, processed string
		fields                 []string
	}{
		{skip: "-1", fields: []string{"skip"}},
		{skip: "abc", fields: []string{"skip"}},
		{limit: "0", fields: []string{"limit"}},
		{limit: "1001", fields: []string{"limit"}},
		{limit: "ten", fields: []string{"limit"}},
		{processed: "maybe", fields: []string{"processed"}},
		{skip: "-5", limit: "5000", processed: "2", fields: []string{"skip", "limit", "processed"}},
	}
	for _, tc := range cases {
		_, err := ListQuery(tc.skip, tc.limit, "", tc.processed)
		require.Error(t, err)
		assert.Equal(t, tc.fields, violationFields(t, err))
	}
}
