package mailbody

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMsg = "From: Acme Careers <careers@acme.com>\r\n" +
	"Subject: Update\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"We have received your application.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML version</p>\r\n" +
	"--b1--\r\n"

const htmlOnlyMsg = "From: jobs@globex.com\r\n" +
	"Subject: Thanks\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>Thank you for applying</p></body></html>\r\n"

const qpMsg = "From: jobs@initech.com\r\n" +
	"Subject: Thanks\r\n" +
	"Content-Type: text/plain; charset=iso-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Candidature re=E7ue\r\n"

func TestTextPrefersPlain(t *testing.T) {
	got, err := Text(strings.NewReader(multipartMsg))
	require.NoError(t, err)
	assert.Contains(t, got, "We have received your application.")
	assert.NotContains(t, got, "HTML version")
}

func TestTextFallsBackToHTML(t *testing.T) {
	got, err := Text(strings.NewReader(htmlOnlyMsg))
	require.NoError(t, err)
	assert.Contains(t, got, "Thank you for applying")
	assert.NotContains(t, got, "<p>")
}

func TestTextDecodesTransferEncodingAndCharset(t *testing.T) {
	got, err := Text(strings.NewReader(qpMsg))
	require.NoError(t, err)
	assert.Contains(t, got, "Candidature reçue")
}
