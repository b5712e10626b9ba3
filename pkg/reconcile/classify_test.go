package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecheck/stagecheck/pkg/fingerprint"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

func fingerprintOf(contents string) fingerprint.Fingerprint {
	hash, _ := fingerprint.Bytes([]byte(contents))
	return hash
}

func TestClassifyStatuses(t *testing.T) {
	localHash := fingerprintOf("local contents\n")
	referenceHash := fingerprintOf("reference contents\n")
	deployHash := fingerprintOf("deployed contents\n")

	record := func() *snapshot.Record {
		return &snapshot.Record{
			Path:          "site/index.php",
			LocalHash:     localHash,
			LocalSize:     int64Ptr(15),
			ReferenceHash: referenceHash,
			LastDeploy:    &snapshot.DeployStamp{Hash: deployHash},
		}
	}

	tests := []struct {
		name   string
		remote string
		exp    Status
	}{
		{
			name:   "MatchLocal",
			remote: "local contents\n",
			exp:    StatusMatchLocal,
		},
		{
			// Line-ending differences between authorities are invisible
			// to the fingerprint.
			name:   "MatchLocalDifferentLineEndings",
			remote: "local contents\r\n",
			exp:    StatusMatchLocal,
		},
		{
			name:   "MatchGit",
			remote: "reference contents\n",
			exp:    StatusMatchGit,
		},
		{
			name:   "MatchDeploy",
			remote: "deployed contents\n",
			exp:    StatusMatchDeploy,
		},
		{
			name:   "DiffHash",
			remote: "someone else's contents\n",
			exp:    StatusDiffHash,
		},
		{
			// Equal byte counts don't soften an unexplained difference.
			name:   "DiffHashSameSize",
			remote: "lacol contents\n",
			exp:    StatusDiffHash,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			store := newFakeStore()
			store.files["site/index.php"] = fakeFile{contents: []byte(test.remote)}

			result, err := Classifier{Store: store}.Classify(record())
			require.NoError(t, err)
			assert.Equal(t, test.exp, result.Status)
			require.NotNil(t, result.RemoteSize)
			assert.Equal(t, int64(len(test.remote)), *result.RemoteSize)
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// The same contents everywhere must classify as MATCH LOCAL: the
	// working copy is the strongest signal.
	contents := "hello\n"
	hash := fingerprintOf(contents)

	store := newFakeStore()
	store.files["a.txt"] = fakeFile{contents: []byte("hello\r\n")}

	record := &snapshot.Record{
		Path:          "a.txt",
		LocalHash:     hash,
		ReferenceHash: hash,
		LastDeploy:    &snapshot.DeployStamp{Hash: hash},
	}

	result, err := Classifier{Store: store}.Classify(record)
	require.NoError(t, err)
	assert.Equal(t, StatusMatchLocal, result.Status)
}

func TestClassifyMissing(t *testing.T) {
	store := newFakeStore()

	result, err := Classifier{Store: store}.Classify(&snapshot.Record{
		Path:      "site/new.php",
		LocalHash: fingerprintOf("new\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, result.Status)
	assert.Nil(t, result.RemoteSize)
	assert.Nil(t, result.RemoteTime)
	assert.Equal(t, TimeUnknown, result.Order)
}

func TestClassifySizeOnly(t *testing.T) {
	store := newFakeStore()
	store.files["match.css"] = fakeFile{contents: []byte("12 bytes....")}
	store.files["diff.css"] = fakeFile{contents: []byte("ten bytes.")}
	store.files["unknown.css"] = fakeFile{contents: []byte("whatever")}

	classifier := Classifier{Store: store, SizeOnly: true}

	tests := []struct {
		name      string
		record    *snapshot.Record
		expStatus Status
	}{
		{
			name:      "MatchSize",
			record:    &snapshot.Record{Path: "match.css", LocalSize: int64Ptr(12)},
			expStatus: StatusMatchSize,
		},
		{
			name:      "DiffSize",
			record:    &snapshot.Record{Path: "diff.css", LocalSize: int64Ptr(12)},
			expStatus: StatusDiffSize,
		},
		{
			name:      "UnknownWithoutLocalSize",
			record:    &snapshot.Record{Path: "unknown.css"},
			expStatus: StatusUnknown,
		},
		{
			name:      "MissingStillReported",
			record:    &snapshot.Record{Path: "gone.css", LocalSize: int64Ptr(1)},
			expStatus: StatusMissing,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			result, err := classifier.Classify(test.record)
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, result.Status)
		})
	}
}

func TestClassifyTimeOrder(t *testing.T) {
	remoteTime := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		localTime *time.Time
		modTime   time.Time
		exp       TimeOrder
		expMarker string
	}{
		{
			name:      "LocalNewer",
			localTime: timePtr(remoteTime.Add(time.Hour)),
			modTime:   remoteTime,
			exp:       TimeNewer,
			expMarker: ">",
		},
		{
			name:      "LocalOlder",
			localTime: timePtr(remoteTime.Add(-time.Hour)),
			modTime:   remoteTime,
			exp:       TimeOlder,
			expMarker: "<",
		},
		{
			// Sub-second differences don't count: the remote only reports
			// whole seconds.
			name:      "EqualWithinSecond",
			localTime: timePtr(remoteTime.Add(300 * time.Millisecond)),
			modTime:   remoteTime,
			exp:       TimeEqual,
			expMarker: "=",
		},
		{
			name:      "UnknownWithoutRemoteTime",
			localTime: timePtr(remoteTime),
			exp:       TimeUnknown,
			expMarker: "?",
		},
		{
			name:      "UnknownWithoutLocalTime",
			modTime:   remoteTime,
			exp:       TimeUnknown,
			expMarker: "?",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			contents := "hello\n"
			store := newFakeStore()
			store.files["a.txt"] = fakeFile{
				contents: []byte(contents),
				modTime:  test.modTime,
			}

			record := &snapshot.Record{
				Path:      "a.txt",
				LocalHash: fingerprintOf(contents),
				LocalTime: test.localTime,
			}
			result, err := Classifier{Store: store}.Classify(record)
			require.NoError(t, err)
			assert.Equal(t, test.exp, result.Order)
			assert.Equal(t, test.expMarker, result.Order.Marker())
		})
	}
}

func TestClassifyAllIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.files["a.php"] = fakeFile{contents: []byte("alpha\n")}
	store.files["b.php"] = fakeFile{contents: []byte("beta\n")}

	records := []*snapshot.Record{
		{Path: "a.php", LocalHash: fingerprintOf("alpha\n")},
		{Path: "b.php", LocalHash: fingerprintOf("changed\n")},
		{Path: "c.php", LocalHash: fingerprintOf("gamma\n")},
	}

	classifier := Classifier{Store: store}
	first, err := classifier.ClassifyAll(records)
	require.NoError(t, err)
	second, err := classifier.ClassifyAll(records)
	require.NoError(t, err)

	var firstStatuses, secondStatuses []Status
	for i := range first {
		firstStatuses = append(firstStatuses, first[i].Status)
		secondStatuses = append(secondStatuses, second[i].Status)
	}
	assert.Equal(t, firstStatuses, secondStatuses)
	assert.Equal(t,
		[]Status{StatusMatchLocal, StatusDiffHash, StatusMissing}, firstStatuses)
}

func TestClassifyAllTransportError(t *testing.T) {
	store := newFakeStore()
	store.files["a.php"] = fakeFile{contents: []byte("alpha\n")}

	records := []*snapshot.Record{
		{Path: "a.php", LocalHash: fingerprintOf("alpha\n")},
		{Path: "b.php", LocalHash: fingerprintOf("beta\n")},
	}

	classifier := Classifier{Store: store}

	// The first record classifies cleanly, then the connection dies. The
	// completed portion is still returned so it can be reported.
	store.sizeErr = assert.AnError
	store.sizeErrOn = "b.php"
	results, err := classifier.ClassifyAll(records)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusMatchLocal, results[0].Status)
}
