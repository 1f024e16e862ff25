package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/TabarBaptiste/masseuse/internal/config"
	"github.com/TabarBaptiste/masseuse/internal/usecase/conflict"
)

func sampleReport() *conflict.Report {
	return &conflict.Report{
		From:  "2026-10-01",
		To:    "2026-10-31",
		Total: 2,
		Conflicts: []conflict.Conflict{
			{
				Type: conflict.TypeBookingOverlap, Severity: conflict.SeverityHigh,
				Date: "2026-10-19", StartTime: "10:30", EndTime: "11:00",
				BookingIDs: []string{"a", "b"}, Description: "booking a overlaps booking b",
			},
			{
				Type: conflict.TypeBlockOverlap, Severity: conflict.SeverityLow,
				Date: "2026-10-20", StartTime: "16:30", EndTime: "17:00",
				BlockedSlotIDs: []uint{3, 4},
			},
		},
	}
}

func TestWriteConflicts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteConflicts(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Conflicts", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Conflicts")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Severity", rows[0][0])
	assert.Equal(t, []string{"HIGH", "BOOKING_OVERLAP", "2026-10-19", "10:30", "11:00", "a, b", "", "booking a overlaps booking b"}, rows[1])
	assert.Equal(t, "3, 4", rows[2][6])

	total, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", total)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "conflicts_2026-10-01_2026-10-31.xlsx", FileName(sampleReport()))
	assert.Equal(t, "conflicts_start_end.xlsx", FileName(&conflict.Report{}))
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (p *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.in = in
	p.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Upload(t *testing.T) {
	p := &fakePutter{}
	s := &S3Store{
		client: p,
		bucket: "salon-reports",
		prefix: "reports",
		now:    func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) },
	}

	key, err := s.Upload(context.Background(), "conflicts.xlsx", ContentTypeXLSX, []byte("xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "reports/2026/10/conflicts.xlsx", key)
	assert.Equal(t, "salon-reports", aws.ToString(p.in.Bucket))
	assert.Equal(t, ContentTypeXLSX, aws.ToString(p.in.ContentType))
	assert.Equal(t, []byte("xlsx"), p.body)

	p.err = errors.New("access denied")
	_, err = s.Upload(context.Background(), "conflicts.xlsx", ContentTypeXLSX, nil)
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3StoreNeedsBucket(t *testing.T) {
	_, err := NewS3Store(s3ConfigForTest(""))
	assert.Error(t, err)

	s, err := NewS3Store(s3ConfigForTest("bucket"))
	require.NoError(t, err)
	assert.Equal(t, "bucket", s.bucket)
}

func s3ConfigForTest(bucket string) config.S3Config {
	return config.S3Config{
		Bucket:          bucket,
		Region:          "eu-west-3",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Prefix:          "reports/",
	}
}
