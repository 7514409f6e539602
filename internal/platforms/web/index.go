package web

const indexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>xenobot console</title>
  <style>
    body { font-family: "Segoe UI", sans-serif; margin: 0; background: linear-gradient(145deg,#f7fafc,#e9eef7); color: #1f2937; }
    .wrap { max-width: 900px; margin: 0 auto; padding: 20px; }
    .panel { background: #fff; border-radius: 12px; box-shadow: 0 8px 30px rgba(15,23,42,.08); padding: 16px; }
    #log { min-height: 320px; max-height: 60vh; overflow: auto; white-space: pre-wrap; border: 1px solid #d1d5db; border-radius: 8px; padding: 12px; background: #f9fafb; }
    .bot { cursor: pointer; }
    .bot:hover { background: #ecfeff; }
    .row { display: flex; gap: 8px; margin-top: 10px; }
    input { flex: 1; padding: 10px; border: 1px solid #cbd5e1; border-radius: 8px; }
    button { padding: 10px 16px; border: 0; border-radius: 8px; background: #0f766e; color: #fff; cursor: pointer; }
    #replying { font-size: 12px; color: #64748b; margin-top: 6px; min-height: 1em; }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="panel">
      <h2>xenobot console</h2>
      <div id="log"></div>
      <div id="replying"></div>
      <div class="row">
        <input id="msg" placeholder="Say something, or /actlike a pirate" />
        <button id="send">Send</button>
      </div>
    </div>
  </div>
  <script>
    const log = document.getElementById('log');
    const msg = document.getElementById('msg');
    const replying = document.getElementById('replying');
    let replyTo = '';
    const append = (role, text) => {
      const line = document.createElement('div');
      line.textContent = role + ': ' + text;
      if (role === 'xenobot') {
        line.className = 'bot';
        line.onclick = () => { replyTo = text; replying.textContent = 'replying to: ' + text; };
      }
      log.appendChild(line);
      log.scrollTop = log.scrollHeight;
    };
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
    ws.onmessage = (e) => { const data = JSON.parse(e.data); append('xenobot', data.text || '(empty)'); };
    ws.onclose = () => append('system', 'disconnected');
    function sendMessage() {
      const text = msg.value.trim();
      if (!text) return;
      append('You', text);
      ws.send(JSON.stringify({ user_id: 'web-user', text, reply_to: replyTo }));
      msg.value = '';
      replyTo = '';
      replying.textContent = '';
    }
    document.getElementById('send').addEventListener('click', sendMessage);
    msg.addEventListener('keydown', (e) => { if (e.key === 'Enter') sendMessage(); });
  </script>
</body>
</html>`
