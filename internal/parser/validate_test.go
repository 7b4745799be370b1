package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testXSD = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
	<xs:element name="ichicsr">
		<xs:complexType>
			<xs:sequence>
				<xs:element name="safetyreport" maxOccurs="unbounded">
					<xs:complexType>
						<xs:sequence>
							<xs:element name="safetyreportid" minOccurs="1"/>
							<xs:element name="receiptdate" minOccurs="0"/>
						</xs:sequence>
					</xs:complexType>
				</xs:element>
			</xs:sequence>
		</xs:complexType>
	</xs:element>
</xs:schema>`

func writeTestSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "icsr.xsd")
	require.NoError(t, os.WriteFile(path, []byte(testXSD), 0o644))
	return path
}

func TestValidateStreamAccepts(t *testing.T) {
	schema := writeTestSchema(t)
	doc := `<ichicsr>
		<safetyreport><safetyreportid>R-1</safetyreportid></safetyreport>
		<safetyreport><safetyreportid>R-2</safetyreportid><receiptdate>20240101</receiptdate></safetyreport>
	</ichicsr>`

	valid, findings, err := ValidateStream(strings.NewReader(doc), schema)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, findings)
}

func TestValidateStreamMissingRequiredChild(t *testing.T) {
	schema := writeTestSchema(t)
	doc := `<ichicsr>
		<safetyreport><receiptdate>20240101</receiptdate></safetyreport>
	</ichicsr>`

	valid, findings, err := ValidateStream(strings.NewReader(doc), schema)
	require.NoError(t, err)
	assert.False(t, valid)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "safetyreportid")
}

func TestValidateStreamSyntaxError(t *testing.T) {
	schema := writeTestSchema(t)
	doc := `<ichicsr><safetyreport><safetyreportid>R-1</unclosed>`

	valid, findings, err := ValidateStream(strings.NewReader(doc), schema)
	require.NoError(t, err)
	assert.False(t, valid)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "syntax error")
}

func TestValidateStreamUnreadableSchema(t *testing.T) {
	_, _, err := ValidateStream(strings.NewReader("<a/>"), filepath.Join(t.TempDir(), "missing.xsd"))
	assert.Error(t, err)
}

func TestValidateStreamMalformedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xsd")
	require.NoError(t, os.WriteFile(path, []byte("<xs:schema"), 0o644))

	_, _, err := ValidateStream(strings.NewReader("<a/>"), path)
	assert.Error(t, err)
}
