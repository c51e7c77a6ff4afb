package liveview

import "html/template"

var pageTemplate = template.Must(template.New("liveview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>TS Console</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem; background: #f7f7f7; color: #222; }
h1 { margin-bottom: 1rem; }
.status { font-size: 0.85rem; color: #666; margin-bottom: 1rem; }
.tabs { display: flex; flex-wrap: wrap; gap: 0.5rem; margin: 0.5rem 0; padding: 0; list-style: none; }
.tabs button { padding: 0.4rem 0.8rem; border: none; border-radius: 4px; background: #e0e0e0; cursor: pointer; }
.tabs button.active { background: #424242; color: #fff; }
.dropdown { margin: 0.25rem 0 0.25rem 1rem; }
.dropdown > button { border: none; background: none; cursor: pointer; font-weight: 600; padding: 0.2rem 0; }
.dropdown > button::before { content: "\25B8 "; }
.dropdown.open > button::before { content: "\25BE "; }
.dropdown.processing > button { color: #2e7d32; }
.disassociated > button { color: #9e9e9e; text-decoration: line-through; }
.content { margin-left: 1rem; }
.placeholder { color: #888; font-style: italic; margin-left: 1rem; }
table { border-collapse: collapse; background: #fff; box-shadow: 0 2px 4px rgba(0,0,0,0.1); margin: 0.5rem 0; }
th, td { padding: 0.35rem 0.6rem; border: 1px solid #ccc; text-align: left; }
.actions { display: flex; flex-wrap: wrap; gap: 0.4rem; margin: 0.25rem 0 0.5rem; }
.actions button { padding: 0.3rem 0.7rem; border: none; border-radius: 4px; background: #1976d2; color: #fff; cursor: pointer; }
.error { color: #b71c1c; margin: 0.5rem 0; }
.backup { display: flex; align-items: center; gap: 0.6rem; margin-bottom: 1rem; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>TS Console</h1>
<div class="status" id="status"></div>
<div class="error" id="error" hidden></div>
<form class="backup" id="backup">
  <span>System configuration backup/restore:</span>
  <a href="/api/configuration.zip" download>Download configuration</a>
  <input type="file" name="file" accept=".zip,application/zip" required>
  <button type="submit">Upload configuration</button>
</form>
<div id="tree"></div>
<script>
const treeBox = document.getElementById('tree');
const statusBox = document.getElementById('status');
const errorBox = document.getElementById('error');
let revision = 0;
const actionCache = {};

function showError(text) {
  errorBox.textContent = text;
  errorBox.hidden = !text;
}

async function post(path, values) {
  const res = await fetch(path, {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify(values || {}),
  });
  if (!res.ok) {
    const body = await res.json().catch(() => ({error: res.statusText}));
    showError(body.error || res.statusText);
    return;
  }
  showError('');
  await refresh();
}

document.getElementById('backup').addEventListener('submit', async (event) => {
  event.preventDefault();
  const res = await fetch('/api/configuration.zip', {method: 'POST', body: new FormData(event.target)});
  if (!res.ok) {
    const body = await res.json().catch(() => ({error: res.statusText}));
    showError(body.error || res.statusText);
    return;
  }
  showError('');
  event.target.reset();
  await refresh();
});

async function actionsOf(key) {
  if (!actionCache[key]) {
    const res = await fetch('/api/nodes/' + encodeURIComponent(key) + '/actions');
    actionCache[key] = res.ok ? await res.json() : [];
  }
  return actionCache[key];
}

function renderRows(node, parent) {
  if (!node.rows || node.rows.length === 0) {
    return;
  }
  const table = document.createElement('table');
  for (const row of node.rows) {
    const tr = document.createElement('tr');
    const th = document.createElement('th');
    th.textContent = row.name;
    const td = document.createElement('td');
    td.textContent = row.value;
    tr.append(th, td);
    table.appendChild(tr);
  }
  parent.appendChild(table);
}

async function renderActions(node, parent) {
  const names = await actionsOf(node.key);
  if (names.length === 0) {
    return;
  }
  const box = document.createElement('div');
  box.className = 'actions';
  for (const name of names) {
    const btn = document.createElement('button');
    btn.textContent = name.replace(/_/g, ' ');
    btn.addEventListener('click', () => {
      const raw = window.prompt('Values for ' + name + ' (JSON object)', '{}');
      if (raw === null) {
        return;
      }
      let values;
      try {
        values = JSON.parse(raw || '{}');
      } catch (err) {
        showError('invalid JSON: ' + err.message);
        return;
      }
      post('/api/nodes/' + encodeURIComponent(node.key) + '/actions/' + name, values);
    });
    box.appendChild(btn);
  }
  parent.appendChild(box);
}

function renderContent(node, parent) {
  const content = document.createElement('div');
  content.className = 'content';
  renderRows(node, content);
  renderActions(node, content);
  for (const list of node.lists || []) {
    renderList(list, content);
  }
  parent.appendChild(content);
}

function renderList(list, parent) {
  if (list.placeholder) {
    const ph = document.createElement('div');
    ph.className = 'placeholder';
    ph.textContent = list.placeholder;
    parent.appendChild(ph);
  }
  if (list.kind === 'tab') {
    const bar = document.createElement('ul');
    bar.className = 'tabs';
    for (const item of list.items) {
      const li = document.createElement('li');
      const btn = document.createElement('button');
      btn.textContent = item.label;
      btn.className = item.selected ? 'active' : '';
      btn.addEventListener('click', () => post('/api/nodes/' + encodeURIComponent(item.key) + '/toggle'));
      li.appendChild(btn);
      bar.appendChild(li);
    }
    parent.appendChild(bar);
    for (const item of list.items) {
      if (!item.hidden) {
        renderContent(item, parent);
      }
    }
    return;
  }
  for (const item of list.items) {
    const box = document.createElement('div');
    box.className = 'dropdown';
    if (!item.hidden) box.classList.add('open');
    if (item.processing) box.classList.add('processing');
    if (item.disassociated) box.classList.add('disassociated');
    const btn = document.createElement('button');
    btn.textContent = item.label;
    btn.addEventListener('click', () => post('/api/nodes/' + encodeURIComponent(item.key) + '/toggle'));
    box.appendChild(btn);
    if (!item.hidden) {
      renderContent(item, box);
    }
    parent.appendChild(box);
  }
}

async function refresh() {
  const res = await fetch('/api/tree');
  if (!res.ok) {
    statusBox.textContent = 'tree unavailable: ' + res.statusText;
    return;
  }
  const body = await res.json();
  revision = body.revision;
  treeBox.replaceChildren();
  for (const list of body.tree.lists || []) {
    renderList(list, treeBox);
  }
  statusBox.textContent = 'revision ' + revision + ' at ' + new Date().toLocaleTimeString();
}

function listen() {
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + '/api/events');
  ws.onmessage = (event) => {
    const msg = JSON.parse(event.data);
    if (msg.revision !== revision) {
      refresh();
    }
  };
  ws.onclose = () => setTimeout(listen, 2000);
}

refresh();
listen();
</script>
</body>
</html>
`))
