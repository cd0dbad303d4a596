package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
		want  [][]string
	}{
		{
			name:  "plain rows",
			input: "a,b,c\n1,2,3\n",
			want:  [][]string{{"a", "b", "c"}, {"1", "2", "3"}},
		},
		{
			name:  "quoted comma and doubled quote",
			input: `x,"MEN'S, ""BIG"" SHOP",y`,
			want:  [][]string{{"x", `MEN'S, "BIG" SHOP`, "y"}},
		},
		{
			name:  "embedded newline is not a row break",
			input: "04/07/2024,\"line one\nline two\",500.86\nnext,row,1\n",
			want:  [][]string{{"04/07/2024", "line one\nline two", "500.86"}, {"next", "row", "1"}},
		},
		{
			name:  "crlf line endings",
			input: "a,b\r\n1,2\r\n",
			want:  [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "unquoted fields trimmed, quoted kept",
			input: "  a  ,\" b \",  c\n",
			want:  [][]string{{"a", " b ", "c"}},
		},
		{
			name:  "blank lines skipped",
			input: "a,b\n\n   \n1,2\n\n",
			want:  [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "trailing empty field kept",
			input: "a,b,\n",
			want:  [][]string{{"a", "b", ""}},
		},
		{
			name:  "header rows skipped",
			input: "title\nh1,h2\n1,2\n3,4\n",
			opts:  Options{HeaderRows: 2},
			want:  [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:  "header and footer rows skipped",
			input: "h\n1,2\n3,4\nfooter text\n",
			opts:  Options{HeaderRows: 1, FooterRows: 1},
			want:  [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:  "header larger than file",
			input: "h\n",
			opts:  Options{HeaderRows: 4, FooterRows: 1},
			want:  nil,
		},
		{
			name:  "stray quote inside unquoted field is literal",
			input: "TV 55\" SCREEN,10\n",
			want:  [][]string{{`TV 55" SCREEN`, "10"}},
		},
		{
			name:  "unterminated quote does not swallow the file",
			input: "a,\"broken,1\nb,ok,2\n",
			want:  [][]string{{"a", `"broken`, "1"}, {"b", "ok", "2"}},
		},
		{
			name:  "text after closing quote is appended",
			input: "\"abc\"def,1\n",
			want:  [][]string{{"abcdef", "1"}},
		},
		{
			name:  "no trailing newline",
			input: "a,b",
			want:  [][]string{{"a", "b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize([]byte(tt.input), tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Nil(t, Tokenize(nil, Options{}))
	assert.Nil(t, Tokenize([]byte("\n\n"), Options{}))
}

func TestDecode_StripsBOM(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Date,Amount")...)
	assert.Equal(t, "Date,Amount", Decode(in))
}

func TestDecode_Windows1252(t *testing.T) {
	// 0xE9 is "é" and 0x92 a right single quote in Windows-1252.
	in := []byte{'C', 'A', 'F', 0xE9, ' ', 'M', 'A', 'U', 'D', 0x92, 'S'}
	assert.Equal(t, "CAFé MAUD’S", Decode(in))
}

func TestDecode_KeepsUTF8(t *testing.T) {
	assert.Equal(t, "Restaurant-Bar & Café 🎾", Decode([]byte("Restaurant-Bar & Café 🎾")))
}

func TestSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Amount", "Merchant"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"03/15/2024", "-25.50", " UBER TRIP "}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"03/16/2024", "12.00", "REFUND"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := Sheet(buf.Bytes(), Options{HeaderRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"03/15/2024", "-25.50", "UBER TRIP"}, rows[0])
	assert.Equal(t, []string{"03/16/2024", "12.00", "REFUND"}, rows[1])
}

func TestSheet_NotAWorkbook(t *testing.T) {
	_, err := Sheet([]byte("a,b\n"), Options{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "opening workbook")
}

func TestRows_DispatchesOnExtension(t *testing.T) {
	rows, err := Rows("Wells Fargo.CSV", []byte("1,2\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)

	_, err = Rows("Wells Fargo.xlsx", []byte("1,2\n"), Options{})
	assert.Error(t, err)
}
