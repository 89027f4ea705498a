package probe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// schedSwitchFormat is a verbatim sched_switch format file from a 6.x kernel.
const schedSwitchFormat = `name: sched_switch
ID: 316
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;
	field:unsigned char common_preempt_count;	offset:3;	size:1;	signed:0;
	field:int common_pid;	offset:4;	size:4;	signed:1;

	field:char prev_comm[16];	offset:8;	size:16;	signed:1;
	field:pid_t prev_pid;	offset:24;	size:4;	signed:1;
	field:int prev_prio;	offset:28;	size:4;	signed:1;
	field:long prev_state;	offset:32;	size:8;	signed:1;
	field:char next_comm[16];	offset:40;	size:16;	signed:1;
	field:pid_t next_pid;	offset:56;	size:4;	signed:1;
	field:int next_prio;	offset:60;	size:4;	signed:1;

print fmt: "prev_comm=%s prev_pid=%d ..."
`

func TestFindFormatField_NextPid(t *testing.T) {
	fld, err := findFormatField(strings.NewReader(schedSwitchFormat), "next_pid")
	require.NoError(t, err)
	assert.Equal(t, 56, fld.Offset)
	assert.Equal(t, 4, fld.Size)
}

func TestFindFormatField_ArrayField(t *testing.T) {
	fld, err := findFormatField(strings.NewReader(schedSwitchFormat), "next_comm")
	require.NoError(t, err)
	assert.Equal(t, 40, fld.Offset)
	assert.Equal(t, 16, fld.Size)
}

func TestFindFormatField_CommonHeader(t *testing.T) {
	fld, err := findFormatField(strings.NewReader(schedSwitchFormat), "common_pid")
	require.NoError(t, err)
	assert.Equal(t, 4, fld.Offset)
}

func TestFindFormatField_Missing(t *testing.T) {
	_, err := findFormatField(strings.NewReader(schedSwitchFormat), "no_such_field")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"no_such_field" not found`)
}

func TestParseFormatLine_NotAField(t *testing.T) {
	_, ok := parseFormatLine("print fmt: \"prev_comm=%s\"")
	assert.False(t, ok)

	_, ok = parseFormatLine("")
	assert.False(t, ok)
}
