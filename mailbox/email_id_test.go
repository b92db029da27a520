package mailbox

import (
	"bytes"
	"encoding/gob"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryEncodingOfEmailID(t *testing.T) {
	fixtures := []EmailID{
		NewEmailIDFromString("toto"),
		NewEmailIDFromString(""),
		NewEmailIDFromUint(0),
		NewEmailIDFromUint(100),
	}
	for _, id := range fixtures {
		t.Run(id.String(), func(t *testing.T) {
			buffer := &bytes.Buffer{}
			encoder := gob.NewEncoder(buffer)
			err := encoder.Encode(&id)
			require.NoError(t, err)
			binary := buffer.Bytes()

			var result EmailID
			buffer = bytes.NewBuffer(binary)
			decoder := gob.NewDecoder(buffer)
			err = decoder.Decode(&result)
			require.NoError(t, err)

			assert.Equal(t, id, result)
		})
	}
}

func TestEmailIDOrdering(t *testing.T) {
	ids := []EmailID{
		NewEmailIDFromString("beta"),
		NewEmailIDFromUint(30),
		NewEmailIDFromString("alpha"),
		NewEmailIDFromUint(2),
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})
	expected := []EmailID{
		NewEmailIDFromUint(2),
		NewEmailIDFromUint(30),
		NewEmailIDFromString("alpha"),
		NewEmailIDFromString("beta"),
	}
	assert.Equal(t, expected, ids)
}

func TestEmailIDCompareIsSymmetric(t *testing.T) {
	left := NewEmailIDFromUint(10)
	right := NewEmailIDFromString("key")
	assert.Equal(t, -1, left.Compare(right))
	assert.Equal(t, 1, right.Compare(left))
	assert.Equal(t, 0, left.Compare(left))
}
