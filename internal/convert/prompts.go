package convert

// DefaultPrompt is used when the caller supplies none. It asks for a
// faithful structural conversion.
const DefaultPrompt = `Convert this PDF document to well-formatted HTML. Preserve headers, lists, tables, and other formatting. Ignore page numbers, footers, and all images. Do not convert or include images in the HTML output - omit all img tags and image references. Ensure tables are properly structured with <table>, <tr>, <th>, and <td> tags.`

// ParaphrasePrompt is the second-attempt variant after a content-protection
// refusal: restructure rather than reproduce.
const ParaphrasePrompt = `Convert this PDF to clean HTML. Rather than copying the content verbatim:
- Reformat and restructure the content while preserving the meaning
- Maintain heading hierarchies and overall document structure
- Convert tables to HTML table format but adjust formatting slightly
- Focus on preserving the information hierarchy rather than exact reproduction
- Use your own words where appropriate while maintaining the document's integrity
- Completely ignore and omit all images - do not include any img tags or image references`

// ExtractionPrompt is the final variant: extract and organize the
// information instead of reproducing the text.
const ExtractionPrompt = `Extract and organize the key information from this document.
Create an HTML document that captures the main points, structure, and data,
without reproducing the exact text. Implement proper HTML tables for any tabular data.
Do not include any images, image tags, or image references in the output.`
