package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickar/mailagent/internal/app/session"
)

func TestDownloadAttachment(t *testing.T) {
	conn := newScriptedConn()
	conn.fetch[fetchKey(imap.UID(9), session.FetchSpecRFC822)] = multipartMessage()

	client := newTestClient(conn)
	defer client.Close(context.Background())

	savePath := filepath.Join(t.TempDir(), "downloads", "report.pdf")
	result, err := client.DownloadAttachment(context.Background(), Inbox, "9", "report.pdf", savePath)
	require.NoError(t, err)

	assert.Equal(t, "9", result.EmailID)
	assert.Equal(t, "report.pdf", result.Name)
	assert.Equal(t, "application/pdf", result.MIMEType)
	assert.Equal(t, savePath, result.SavedPath)

	data, err := os.ReadFile(savePath)
	require.NoError(t, err)
	// The base64 transfer encoding is decoded before writing.
	assert.Equal(t, "%PDF-1.4\n", string(data))
	assert.Equal(t, len(data), result.Size)
}

func TestDownloadAttachmentNotFound(t *testing.T) {
	conn := newScriptedConn()
	conn.fetch[fetchKey(imap.UID(9), session.FetchSpecRFC822)] = multipartMessage()

	client := newTestClient(conn)
	defer client.Close(context.Background())

	savePath := filepath.Join(t.TempDir(), "missing.bin")
	_, err := client.DownloadAttachment(context.Background(), Inbox, "9", "missing.bin", savePath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)

	_, statErr := os.Stat(savePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadAttachmentMessageNotFound(t *testing.T) {
	conn := newScriptedConn()

	client := newTestClient(conn)
	defer client.Close(context.Background())

	_, err := client.DownloadAttachment(context.Background(), Inbox, "321", "any.txt", filepath.Join(t.TempDir(), "any.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDownloadAttachmentNameIsCaseSensitive(t *testing.T) {
	conn := newScriptedConn()
	conn.fetch[fetchKey(imap.UID(9), session.FetchSpecRFC822)] = multipartMessage()

	client := newTestClient(conn)
	defer client.Close(context.Background())

	_, err := client.DownloadAttachment(context.Background(), Inbox, "9", "Report.PDF", filepath.Join(t.TempDir(), "r.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
}
